// Package admission limits how many distinct devices may act as one account.
//
// A check classifies the device, resolves its fingerprint, reads the user's
// slot set and the locally stored trust token, and then decides in order:
// known fingerprint, trust-token migration, free slot, deny. Hard failures
// fail open because the control is a soft licensing limit, not a security
// boundary. A check performs at most one slot-set write.
package admission

import (
	"context"
	"errors"

	"avtotest-service/internal/domain"
	"go.uber.org/zap"
)

// SlotStore reads and mutates the server-held device slot table.
type SlotStore interface {
	GetSlots(ctx context.Context, userID string) (domain.DeviceSlots, error)
	// AppendDevice binds deviceID if the set still has room; otherwise ErrSlotConflict.
	AppendDevice(ctx context.Context, userID string, kind domain.DeviceType, deviceID string) error
	// ReplaceDevice swaps oldID for newID if oldID is still bound; otherwise ErrSlotConflict.
	ReplaceDevice(ctx context.Context, userID string, kind domain.DeviceType, oldID, newID string) error
}

// Outcome names which branch of the decision admitted or denied the device.
type Outcome string

const (
	OutcomeNoUser     Outcome = "no_user"
	OutcomeKnown      Outcome = "known"
	OutcomeMigrated   Outcome = "migrated"
	OutcomeRegistered Outcome = "registered"
	OutcomeDenied     Outcome = "denied"
	OutcomeFailOpen   Outcome = "fail_open"
	// OutcomeExempt marks roles that are never slot-limited.
	OutcomeExempt Outcome = "exempt"
)

// Decision is the result of one admission check.
type Decision struct {
	Allowed    bool              `json:"allowed"`
	Outcome    Outcome           `json:"outcome"`
	DeviceType domain.DeviceType `json:"deviceType"`
	DeviceID   string            `json:"-"`
	Used       int               `json:"used"`
	Limit      int               `json:"limit"`
}

// Status is the view exposed to clients; Allowed is nil while no identity is resolved.
type Status struct {
	Allowed  *bool `json:"allowed"`
	Checking bool  `json:"checking"`
}

// Status converts a finished decision into the client contract.
func (d Decision) Status() Status {
	if d.Outcome == OutcomeNoUser {
		return Status{}
	}
	allowed := d.Allowed
	return Status{Allowed: &allowed}
}

// Controller runs admission checks.
type Controller struct {
	classifier    Classifier
	fingerprinter Fingerprinter
	slots         SlotStore
	logger        *zap.Logger
	metrics       *Metrics
}

// NewController wires a controller; metrics may be nil.
func NewController(classifier Classifier, fingerprinter Fingerprinter, slots SlotStore, logger *zap.Logger, metrics *Metrics) *Controller {
	if classifier == nil {
		classifier = UserAgentClassifier{}
	}
	if fingerprinter == nil {
		fingerprinter = ClientFingerprinter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		classifier:    classifier,
		fingerprinter: fingerprinter,
		slots:         slots,
		logger:        logger,
		metrics:       metrics,
	}
}

// Check decides whether the device described by signals may act as userID.
// Concurrent checks for the same device are safe: a check that loses the slot
// write to one binding the same fingerprint still admits it.
func (c *Controller) Check(ctx context.Context, userID string, signals Signals, tokens TokenStore) Decision {
	if userID == "" {
		return Decision{Outcome: OutcomeNoUser}
	}
	d := c.check(ctx, userID, signals, tokens)
	c.metrics.observe(d)
	return d
}

func (c *Controller) check(ctx context.Context, userID string, signals Signals, tokens TokenStore) Decision {
	kind := c.classifier.Classify(signals)
	log := c.logger.With(zap.String("user_id", userID), zap.String("device_type", string(kind)))

	fp, err := c.fingerprinter.Fingerprint(ctx, signals)
	if err != nil {
		log.Warn("fingerprint failed, admitting", zap.Error(err))
		return Decision{Allowed: true, Outcome: OutcomeFailOpen, DeviceType: kind}
	}

	slots, err := c.slots.GetSlots(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("no profile for user, denying")
		return Decision{Outcome: OutcomeDenied, DeviceType: kind, DeviceID: fp}
	}
	if err != nil {
		log.Warn("slot lookup failed, admitting", zap.Error(err))
		return Decision{Allowed: true, Outcome: OutcomeFailOpen, DeviceType: kind, DeviceID: fp}
	}

	token, hasToken, err := tokens.LoadToken(ctx)
	if err != nil {
		log.Warn("trust token unreadable, ignoring", zap.Error(err))
		token, hasToken = "", false
	}

	ids := slots.IDs(kind)
	limit := slots.Limit(kind)
	decision := Decision{DeviceType: kind, DeviceID: fp, Used: len(ids), Limit: limit}

	switch {
	case slots.Contains(kind, fp):
		decision.Allowed = true
		decision.Outcome = OutcomeKnown
		if !hasToken || token != fp {
			c.saveToken(ctx, log, tokens, fp)
		}
		return decision

	case hasToken && token != "" && slots.Contains(kind, token):
		// One physical device, new fingerprint: swap in place, count unchanged.
		if err := c.slots.ReplaceDevice(ctx, userID, kind, token, fp); err != nil {
			return c.writeFailed(ctx, log, userID, tokens, decision, err)
		}
		log.Info("device fingerprint migrated")
		decision.Allowed = true
		decision.Outcome = OutcomeMigrated
		c.saveToken(ctx, log, tokens, fp)
		return decision

	case slots.HasRoom(kind):
		if err := c.slots.AppendDevice(ctx, userID, kind, fp); err != nil {
			return c.writeFailed(ctx, log, userID, tokens, decision, err)
		}
		log.Info("device registered", zap.Int("used", len(ids)+1), zap.Int("limit", limit))
		decision.Allowed = true
		decision.Outcome = OutcomeRegistered
		decision.Used++
		c.saveToken(ctx, log, tokens, fp)
		return decision
	}

	log.Info("device limit reached, denying", zap.Int("used", len(ids)), zap.Int("limit", limit))
	decision.Outcome = OutcomeDenied
	return decision
}

// writeFailed handles an error from the single slot write of a check.
// A conflict means the set changed since it was read; the fresh set decides.
func (c *Controller) writeFailed(ctx context.Context, log *zap.Logger, userID string, tokens TokenStore, d Decision, err error) Decision {
	if errors.Is(err, domain.ErrSlotConflict) {
		slots, rerr := c.slots.GetSlots(ctx, userID)
		if rerr != nil {
			log.Warn("slot re-read failed, admitting", zap.Error(rerr))
			d.Allowed = true
			d.Outcome = OutcomeFailOpen
			return d
		}
		d.Used = len(slots.IDs(d.DeviceType))
		d.Limit = slots.Limit(d.DeviceType)
		if slots.Contains(d.DeviceType, d.DeviceID) {
			log.Info("device bound by a concurrent check")
			d.Allowed = true
			d.Outcome = OutcomeKnown
			c.saveToken(ctx, log, tokens, d.DeviceID)
			return d
		}
		log.Info("slot set changed concurrently, denying", zap.Int("used", d.Used), zap.Int("limit", d.Limit))
		d.Outcome = OutcomeDenied
		return d
	}
	log.Warn("slot write failed, admitting", zap.Error(err))
	d.Allowed = true
	d.Outcome = OutcomeFailOpen
	return d
}

func (c *Controller) saveToken(ctx context.Context, log *zap.Logger, tokens TokenStore, fp string) {
	if err := tokens.SaveToken(ctx, fp); err != nil {
		log.Warn("persist trust token", zap.Error(err))
	}
}
