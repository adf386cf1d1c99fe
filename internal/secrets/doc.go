// Package secrets detects credentials that would leak if content were made
// public. The auto-publish strategy treats any finding as a failed quality
// gate. Findings carry rule ids and positions, never the matched text.
package secrets
