package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/contentd/internal/http"
	"github.com/fyrsmithlabs/contentd/internal/publish"
	"github.com/fyrsmithlabs/contentd/internal/review"
)

var (
	createID       string
	createTitle    string
	createBody     string
	createCategory string

	publishAt       string
	publishIn       time.Duration
	publishPriority string
	publishForce    bool
	publishComment  string
	publishChannel  string
	publishEnv      string
	publishProps    map[string]string
	publishTags     []string
	publishBatch    []string
	publishAuto     bool

	decideComment string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft content item",
	Example: `  pubctl create --title "Release notes" --body "What changed in 2.4" --category news
  pubctl create --id c-42 --title "Hello" --body "First post body"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body := httpserver.CreateContentRequest{
			ID:       createID,
			Title:    createTitle,
			Body:     createBody,
			Category: createCategory,
		}
		var resp httpserver.ContentResponse
		if err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/content", body, &resp); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(w io.Writer) { renderContent(w, resp) })
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <content-id>",
	Short: "Publish a content item",
	Long: `Publish asks the server to publish a content item. The server picks the
strategy unless it has been pinned: a future --at schedules the item, more
than ten --batch ids use the batch strategy, --auto requests automatic
publishing, and contributors are routed through review.`,
	Example: `  pubctl publish c-42
  pubctl publish c-42 --at 2026-11-01T09:00:00Z
  pubctl publish c-42 --in 2h --priority high
  pubctl publish c-42 --property category=legal --comment "ready"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := buildPublishRequest(time.Now())
		if err != nil {
			return err
		}
		var resp httpserver.PublishResponse
		path := "/api/v1/content/" + url.PathEscape(args[0]) + "/publish"
		if err := newClient().do(cmd.Context(), http.MethodPost, path, body, &resp); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(w io.Writer) { renderPublish(w, resp) })
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <content-id>",
	Short: "Cancel a scheduled publication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpserver.CancelResponse
		path := "/api/v1/content/" + url.PathEscape(args[0]) + "/schedule"
		err := newClient().do(cmd.Context(), http.MethodDelete, path, nil, &resp)
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
			resp = httpserver.CancelResponse{ContentID: args[0]}
			err = nil
		}
		if err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(w io.Writer) {
			if resp.Cancelled {
				fmt.Fprintln(w, healthyStyle.Render("✓")+" cancelled scheduled publication of "+valueStyle.Render(resp.ContentID))
				return
			}
			fmt.Fprintln(w, dimStyle.Render("no scheduled publication for "+resp.ContentID))
		})
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review <content-id>",
	Short: "Show the review case for a content item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rc review.Case
		if err := newClient().do(cmd.Context(), http.MethodGet, "/api/v1/reviews/"+url.PathEscape(args[0]), nil, &rc); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), rc, func(w io.Writer) { renderCase(w, &rc) })
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide <content-id> <approved|rejected|needs_revision>",
	Short: "Record a review decision",
	Example: `  pubctl --actor r1 --role editor decide c-42 approved
  pubctl --actor r2 decide c-42 rejected --comment "sources missing"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := review.ParseDecision(args[1])
		if err != nil {
			return err
		}
		body := httpserver.DecisionRequest{Decision: string(d), Comment: decideComment}
		var rc review.Case
		path := "/api/v1/reviews/" + url.PathEscape(args[0]) + "/decisions"
		if err := newClient().do(cmd.Context(), http.MethodPost, path, body, &rc); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), rc, func(w io.Writer) { renderCase(w, &rc) })
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <content-id>",
	Short: "Withdraw a content item from review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rc review.Case
		path := "/api/v1/reviews/" + url.PathEscape(args[0]) + "/withdraw"
		if err := newClient().do(cmd.Context(), http.MethodPost, path, nil, &rc); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), rc, func(w io.Writer) { renderCase(w, &rc) })
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show registered strategies and their statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpserver.StrategiesResponse
		if err := newClient().do(cmd.Context(), http.MethodGet, "/api/v1/strategies", nil, &resp); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(w io.Writer) { renderStrategies(w, resp) })
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the contentd server health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpserver.HealthResponse
		if err := newClient().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		return emit(cmd.OutOrStdout(), resp, func(w io.Writer) { renderHealth(w, resp) })
	},
}

func init() {
	createCmd.Flags().StringVar(&createID, "id", "", "content id (generated when empty)")
	createCmd.Flags().StringVar(&createTitle, "title", "", "content title")
	createCmd.Flags().StringVar(&createBody, "body", "", "content body")
	createCmd.Flags().StringVar(&createCategory, "category", "", "review category")
	_ = createCmd.MarkFlagRequired("title")

	f := publishCmd.Flags()
	f.StringVar(&publishAt, "at", "", "publish at this RFC3339 time")
	f.DurationVar(&publishIn, "in", 0, "publish after this delay")
	f.StringVar(&publishPriority, "priority", "", "background, low, normal, high or emergency")
	f.BoolVar(&publishForce, "force", false, "bypass soft quality checks")
	f.StringVar(&publishComment, "comment", "", "comment attached to the request")
	f.StringVar(&publishChannel, "channel", "", "target channel")
	f.StringVar(&publishEnv, "environment", "", "target environment")
	f.StringToStringVar(&publishProps, "property", nil, "request property key=value (repeatable)")
	f.StringSliceVar(&publishTags, "tag", nil, "request tag (repeatable)")
	f.StringSliceVar(&publishBatch, "batch", nil, "additional content ids to publish together")
	f.BoolVar(&publishAuto, "auto", false, "request automatic publishing")
	publishCmd.MarkFlagsMutuallyExclusive("at", "in")

	decideCmd.Flags().StringVar(&decideComment, "comment", "", "comment recorded with the decision")
}

// buildPublishRequest turns the publish flags into a request body.
func buildPublishRequest(now time.Time) (httpserver.PublishRequest, error) {
	body := httpserver.PublishRequest{
		Priority:    publishPriority,
		Force:       publishForce,
		Comment:     publishComment,
		Channel:     publishChannel,
		Environment: publishEnv,
		Tags:        publishTags,
	}
	if _, ok := publish.ParsePriority(publishPriority); !ok {
		return body, fmt.Errorf("invalid priority %q", publishPriority)
	}

	switch {
	case publishAt != "":
		at, err := time.Parse(time.RFC3339, publishAt)
		if err != nil {
			return body, fmt.Errorf("invalid --at time: %w", err)
		}
		body.ScheduledFor = &at
	case publishIn < 0:
		return body, fmt.Errorf("--in must not be negative")
	case publishIn > 0:
		at := now.Add(publishIn).UTC()
		body.ScheduledFor = &at
	}

	props := make(map[string]string, len(publishProps)+2)
	for k, v := range publishProps {
		props[k] = v
	}
	if len(publishBatch) > 0 {
		ids := make([]string, 0, len(publishBatch))
		for _, id := range publishBatch {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		props[publish.PropBatchItems] = strings.Join(ids, ",")
	}
	if publishAuto {
		props[publish.PropAutoPublish] = "true"
	}
	if len(props) > 0 {
		body.Properties = props
	}
	return body, nil
}

// emit writes v as indented JSON when --json is set, otherwise calls render.
func emit(w io.Writer, v any, render func(io.Writer)) error {
	if !asJSON {
		render(w)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
