package publish

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/contentd/internal/content"
)

// DefaultMinBodyLength is the soft minimum body length in characters.
const DefaultMinBodyLength = 10

// Rules are the base preconditions shared by strategies. Guards are pure:
// they read item and req and never mutate them.
type Rules struct {
	// MinRole is the least privileged role allowed to run the strategy.
	MinRole content.Role
	// Statuses lists the content statuses the strategy accepts.
	Statuses []content.Status
	// MinBodyLength is enforced unless the request sets Force.
	MinBodyLength int
}

// RequireArgs rejects nil item or request.
func RequireArgs(op string, item content.Item, req *Request) error {
	if item == nil {
		return Validation(op, "", "", fmt.Errorf("%w: content", ErrNilArgument))
	}
	if req == nil {
		return Validation(op, item.ID(), "", fmt.Errorf("%w: request", ErrNilArgument))
	}
	return nil
}

// CheckFields requires non-empty id, title and body.
func CheckFields(op string, item content.Item) error {
	var missing []string
	if strings.TrimSpace(item.ID()) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(item.Title()) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(item.Body()) == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return Validation(op, item.ID(),
			"Content needs a "+strings.Join(missing, ", ")+" before it can be published.",
			fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ",")))
	}
	return nil
}

// CheckRole requires the actor to be at least min.
func CheckRole(op string, item content.Item, actor content.Actor, min content.Role) error {
	if !actor.Role.AtLeast(min) {
		return Validation(op, item.ID(),
			fmt.Sprintf("Your role (%s) cannot publish this way; %s or higher is required.", actor.Role, min),
			fmt.Errorf("%w: %s < %s", ErrInsufficientRole, actor.Role, min))
	}
	return nil
}

// CheckStatus requires item's status to be one of allowed.
func CheckStatus(op string, item content.Item, allowed ...content.Status) error {
	st := item.Status()
	if !st.In(allowed...) {
		return Validation(op, item.ID(),
			fmt.Sprintf("Content in status %q cannot be published this way.", st),
			fmt.Errorf("%w: %s not in %v", ErrInvalidStatus, st, allowed))
	}
	return nil
}

// CheckBodyLength enforces the minimum body length unless force is set.
func CheckBodyLength(op string, item content.Item, min int, force bool) error {
	if force || min <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(item.Body())); n < min {
		return Validation(op, item.ID(),
			fmt.Sprintf("Content body must be at least %d characters.", min),
			fmt.Errorf("%w: %d < %d", ErrBodyTooShort, n, min))
	}
	return nil
}

// Check runs the base rules in order and returns the first failure.
func (r Rules) Check(op string, item content.Item, req *Request) error {
	if err := RequireArgs(op, item, req); err != nil {
		return err
	}
	if err := CheckFields(op, item); err != nil {
		return err
	}
	if err := CheckRole(op, item, req.Actor(), r.MinRole); err != nil {
		return err
	}
	if len(r.Statuses) > 0 {
		if err := CheckStatus(op, item, r.Statuses...); err != nil {
			return err
		}
	}
	return CheckBodyLength(op, item, r.MinBodyLength, req.Force)
}
