// Package reconcile merges an external contact snapshot into the local store
// by natural key, computing inserts, updates and deletes, then applies the
// plan with per-record failure isolation.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/contact"
)

// ErrDuplicateKey marks a natural-key collision inside a single collection.
// It is a data-integrity violation: the whole batch aborts, partial
// application is never attempted.
var ErrDuplicateKey = errors.New("duplicate natural key")

// ValidationError rejects a single record without aborting the batch.
type ValidationError struct {
	Phone  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s for %s: %s", e.Field, e.Phone, e.Reason)
}

// Rejection records a contact excluded from the plan by validation.
type Rejection struct {
	Phone string
	Err   *ValidationError
}

// Plan describes the three disjoint sets computed from a local and an
// external snapshot. The sets partition the union of both key sets: a phone
// number never appears in more than one of them.
type Plan struct {
	Insert []contact.Contact // external-only keys
	Update []contact.Contact // keys in both, field-level differs; external values
	Delete []string          // local-only phone numbers

	// Rejected holds external records that failed validation. They are
	// excluded from Insert/Update and surfaced in the apply result.
	Rejected []Rejection
}

// Empty reports whether the plan is a no-op.
func (p *Plan) Empty() bool {
	return len(p.Insert) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Options bound record validation.
type Options struct {
	// YearMetFloor is the earliest acceptable YearMet. Zero applies the
	// configured default.
	YearMetFloor int

	// Today supplies the upper bound for YearMet. Zero means time.Now().
	Today time.Time
}

func (o Options) normalized() Options {
	if o.YearMetFloor == 0 {
		o.YearMetFloor = config.YearMetFloor
	}
	if o.Today.IsZero() {
		o.Today = time.Now()
	}
	return o
}

// BuildPlan indexes both collections by phone number and computes the diff.
// External wins on conflicting fields; the local surrogate ID is carried over
// so updates never clobber store-generated identity.
func BuildPlan(local, external []contact.Contact, opts Options) (*Plan, error) {
	opts = opts.normalized()

	localIdx, err := indexByPhone(local)
	if err != nil {
		return nil, err
	}
	externalIdx, err := indexByPhone(external)
	if err != nil {
		return nil, err
	}

	plan := &Plan{}

	for _, ext := range external {
		if verr := validate(ext, opts); verr != nil {
			plan.Rejected = append(plan.Rejected, Rejection{Phone: ext.Phone, Err: verr})
			slog.Warn(config.MsgRecordInvalid,
				config.LogKeyComponent, config.CompReconcile,
				config.LogKeyPhone, ext.Phone,
				config.LogKeyError, verr,
			)
			continue
		}

		loc, exists := localIdx[ext.Phone]
		if !exists {
			plan.Insert = append(plan.Insert, ext)
			continue
		}
		if !equivalent(loc, ext) {
			merged := ext
			merged.ID = loc.ID
			plan.Update = append(plan.Update, merged)
		}
	}

	for _, loc := range local {
		if _, exists := externalIdx[loc.Phone]; !exists {
			plan.Delete = append(plan.Delete, loc.Phone)
		}
	}

	slog.Debug(config.MsgPlanComputed,
		config.LogKeyComponent, config.CompReconcile,
		config.LogKeyInserted, len(plan.Insert),
		config.LogKeyUpdated, len(plan.Update),
		config.LogKeyDeleted, len(plan.Delete),
		config.LogKeyRejected, len(plan.Rejected),
	)
	return plan, nil
}

func indexByPhone(contacts []contact.Contact) (map[string]contact.Contact, error) {
	idx := make(map[string]contact.Contact, len(contacts))
	for _, c := range contacts {
		if _, dup := idx[c.Phone]; dup {
			slog.Error(config.MsgDupKeyAbort,
				config.LogKeyComponent, config.CompReconcile,
				config.LogKeyPhone, c.Phone,
			)
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, c.Phone)
		}
		idx[c.Phone] = c
	}
	return idx, nil
}

func validate(c contact.Contact, opts Options) *ValidationError {
	if c.YearMet == 0 {
		return nil
	}
	if c.YearMet < opts.YearMetFloor {
		return &ValidationError{
			Phone:  c.Phone,
			Field:  "yearMet",
			Reason: fmt.Sprintf("%d is before floor %d", c.YearMet, opts.YearMetFloor),
		}
	}
	if y := opts.Today.Year(); c.YearMet > y {
		return &ValidationError{
			Phone:  c.Phone,
			Field:  "yearMet",
			Reason: fmt.Sprintf("%d is after current year %d", c.YearMet, y),
		}
	}
	return nil
}

// equivalent compares the fields the external source owns. The surrogate ID
// stays out of the comparison: it is local-only state. Birthdays compare as
// UTC calendar dates and LastContacted at second precision, matching what the
// store can persist; anything finer would re-plan the same update on every
// run.
func equivalent(a, b contact.Contact) bool {
	return a.Name == b.Name &&
		contact.DateOnly(a.Birthday).Equal(contact.DateOnly(b.Birthday)) &&
		a.YearKnown == b.YearKnown &&
		a.YearMet == b.YearMet &&
		a.Email == b.Email &&
		slices.Equal(a.Locations, b.Locations) &&
		slices.Equal(a.Affiliations, b.Affiliations) &&
		a.LastContacted.UTC().Truncate(time.Second).Equal(b.LastContacted.UTC().Truncate(time.Second)) &&
		a.FrequencyDays == b.FrequencyDays &&
		a.Active == b.Active
}
