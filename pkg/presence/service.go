package presence

import (
	"context"
	"fmt"
	"time"

	"chatrelay/pkg/models"
	"chatrelay/pkg/state/logger"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/timeutil"
)

// Authorizer answers whether a user id is a known local user.
type Authorizer interface {
	HasUser(ctx context.Context, id string) (bool, error)
}

// Sink accepts routed messages for durable delivery.
type Sink interface {
	Insert(ctx context.Context, m *models.Message) error
}

type Options struct {
	// Host is the domain part of server-originated addresses.
	Host string
	// Timeout is how long a user may stay silent before being demoted.
	Timeout time.Duration
	Clock   timeutil.Clock
	Metrics *telemetry.Metrics
}

// Service implements presence tracking on top of a PresenceStore.
type Service struct {
	store   store.PresenceStore
	auth    Authorizer
	sink    Sink
	host    string
	timeout time.Duration
	clock   timeutil.Clock
	metrics *telemetry.Metrics
}

func NewService(st store.PresenceStore, auth Authorizer, sink Sink, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = timeutil.System()
	}
	return &Service{
		store:   st,
		auth:    auth,
		sink:    sink,
		host:    opts.Host,
		timeout: opts.Timeout,
		clock:   opts.Clock,
		metrics: opts.Metrics,
	}
}

func (s *Service) Host() string { return s.host }

func (s *Service) now() int64 { return s.clock.Now().Unix() }

// SetPresence creates or replaces the row of rec.UserID. A zero
// LastActive is stamped with the current time.
func (s *Service) SetPresence(ctx context.Context, rec models.PresenceRecord) error {
	p, err := models.ParsePresence(string(rec.Presence))
	if err != nil {
		return err
	}
	rec.Presence = p
	if rec.LastActive == 0 {
		rec.LastActive = s.now()
	}
	return s.store.Upsert(ctx, rec)
}

// GetPresences returns every row except the caller's, addressed from the
// other user to the caller.
func (s *Service) GetPresences(ctx context.Context, inv *Invocation) ([]models.PresenceRecord, error) {
	rows, err := s.store.List(ctx, inv.Self)
	if err != nil {
		return nil, err
	}
	to := models.Address(inv.Self, s.host)
	for i := range rows {
		rows[i].From = models.Address(rows[i].UserID, s.host)
		rows[i].To = to
	}
	return rows, nil
}

// GetConnectedUsers returns the connected users other than the caller that
// the directory knows. The first result is cached on the invocation and
// returned by every later call, even if storage changed meanwhile.
func (s *Service) GetConnectedUsers(ctx context.Context, inv *Invocation) ([]string, error) {
	inv.mu.Lock()
	if inv.fetched {
		out := inv.connected
		inv.mu.Unlock()
		return out, nil
	}
	inv.mu.Unlock()

	ids, err := s.store.ListConnected(ctx, inv.Self)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		ok, err := s.auth.HasUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("authorize %s: %w", id, err)
		}
		if ok {
			out = append(out, id)
		}
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.fetched {
		return inv.connected, nil
	}
	inv.fetched = true
	inv.connected = out
	return out, nil
}

// SetActive stamps the user's LastActive with now. Unknown users are ignored.
func (s *Service) SetActive(ctx context.Context, userID string) error {
	return s.store.Touch(ctx, userID, s.now())
}

// DeletePresence removes the user's row if any.
func (s *Service) DeletePresence(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, userID)
}

// Sweep demotes users silent for longer than the timeout and tells every
// remaining connected user about it. It runs at most once per invocation;
// later calls return immediately with nil.
func (s *Service) Sweep(ctx context.Context, inv *Invocation) error {
	if !inv.claimSweep() {
		return nil
	}
	tr := s.metrics.Track("presence.sweep")
	defer tr.Finish()

	cutoff := s.now() - int64(s.timeout/time.Second)
	inactive, err := s.store.ExpireInactive(ctx, inv.Self, cutoff)
	if err != nil {
		return err
	}
	tr.Mark("expire")

	connected, err := s.GetConnectedUsers(ctx, inv)
	if err != nil {
		return err
	}
	if len(inactive) == 0 {
		s.metrics.SweepRan(0, 0)
		return nil
	}
	online := difference(connected, inactive)
	tr.Mark("connected")

	now := s.now()
	sent := 0
	for _, u := range inactive {
		for _, r := range online {
			m := &models.Message{
				Kind: models.KindPresence,
				Type: string(models.PresenceUnavailable),
				From: u,
				To:   r,
				TS:   now,
			}
			if err := s.sink.Insert(ctx, m); err != nil {
				return fmt.Errorf("broadcast %s to %s: %w", u, r, err)
			}
			s.metrics.MessageInserted(models.KindPresence)
			sent++
		}
		inv.Notify(&models.Message{
			Kind: models.KindPresence,
			Type: string(models.PresenceUnavailable),
			From: models.Address(u, s.host),
			To:   models.Address(inv.Self, s.host),
			TS:   now,
		})
	}
	tr.Mark("broadcast")
	s.metrics.SweepRan(len(inactive), sent)
	logger.Info("presence_sweep", "self", inv.Self, "inactive", len(inactive), "online", len(online), "messages", sent)
	return nil
}

// Announce stores the caller's presence and sends it to every connected user.
func (s *Service) Announce(ctx context.Context, inv *Invocation, p models.Presence) error {
	p, err := models.ParsePresence(string(p))
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.store.Upsert(ctx, models.PresenceRecord{UserID: inv.Self, Presence: p, LastActive: now}); err != nil {
		return err
	}
	connected, err := s.GetConnectedUsers(ctx, inv)
	if err != nil {
		return err
	}
	for _, r := range connected {
		m := &models.Message{
			Kind: models.KindPresence,
			Type: string(p),
			From: inv.Self,
			To:   r,
			TS:   now,
		}
		if err := s.sink.Insert(ctx, m); err != nil {
			return fmt.Errorf("announce to %s: %w", r, err)
		}
		s.metrics.MessageInserted(models.KindPresence)
	}
	logger.Debug("presence_announced", "user_id", inv.Self, "presence", p, "recipients", len(connected))
	return nil
}

// difference returns the members of a not in b, keeping a's order.
func difference(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, x := range b {
		drop[x] = struct{}{}
	}
	out := make([]string, 0, len(a))
	for _, x := range a {
		if _, ok := drop[x]; !ok {
			out = append(out, x)
		}
	}
	return out
}
