package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"code-collab/internal/changelog"
	"code-collab/internal/models"
	"code-collab/internal/ot"
	"code-collab/internal/presence"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"golang.org/x/time/rate"
)

// Config tunes the room manager. Zero values fall back to the defaults the
// service ships with.
type Config struct {
	MaxParticipants int           // participant cap per room
	GracePeriod     time.Duration // empty-room teardown delay, tolerates reconnects
	TypingIdle      time.Duration // typing flag auto-clears after this much silence
	PresenceTimeout time.Duration // participant expires after this much inactivity
	SweepInterval   time.Duration // presence sweep period
	CursorRate      rate.Limit    // cursor-move broadcasts per second per participant
	ActivityCap     int           // feed ring size
	KeepOps         int           // change log retention: op count horizon
	KeepAge         time.Duration // change log retention: age horizon
	BackendTimeout  time.Duration // bound on persistence calls inside a mutation
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxParticipants: 8,
		GracePeriod:     5 * time.Minute,
		TypingIdle:      3 * time.Second,
		PresenceTimeout: 30 * time.Second,
		SweepInterval:   10 * time.Second,
		CursorRate:      10,
		ActivityCap:     50,
		KeepOps:         1000,
		KeepAge:         time.Hour,
		BackendTimeout:  10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxParticipants <= 0 {
		c.MaxParticipants = d.MaxParticipants
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.TypingIdle <= 0 {
		c.TypingIdle = d.TypingIdle
	}
	if c.PresenceTimeout <= 0 {
		c.PresenceTimeout = d.PresenceTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	if c.CursorRate <= 0 {
		c.CursorRate = d.CursorRate
	}
	if c.ActivityCap <= 0 {
		c.ActivityCap = d.ActivityCap
	}
	if c.KeepOps <= 0 {
		c.KeepOps = d.KeepOps
	}
	if c.KeepAge <= 0 {
		c.KeepAge = d.KeepAge
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = d.BackendTimeout
	}
	return c
}

// Manager owns room lifecycle and is the single entry point for every room
// mutation. All writes to one room's document and participant set are
// serialized through that room's lock, so the conflict resolver never
// transforms two ops for the same room concurrently; different rooms proceed
// in parallel.
type Manager struct {
	cfg      Config
	presence *presence.Store

	roomRepo   RoomRepository      // optional
	changeRepo ChangeLogRepository // optional
	archive    ActivitySink        // optional

	mu    sync.RWMutex
	rooms map[string]*roomState

	done chan struct{}
}

// roomState is the per-room mutable state, exclusively owned by the manager.
type roomState struct {
	mu sync.Mutex

	room models.Room
	clog *changelog.Log
	feed *activityFeed

	subs     map[string]chan models.ServerEvent
	colors   map[string]string // participant ID -> assigned color
	limiters map[string]*rate.Limiter
	typing   map[string]*time.Timer
	teardown *time.Timer
}

// NewManager creates a room manager. Repositories and the archive sink may
// be nil, in which case the manager runs purely in-memory.
func NewManager(cfg Config, roomRepo RoomRepository, changeRepo ChangeLogRepository, archive ActivitySink) *Manager {
	return &Manager{
		cfg:        cfg.withDefaults(),
		presence:   presence.NewStore(),
		roomRepo:   roomRepo,
		changeRepo: changeRepo,
		archive:    archive,
		rooms:      make(map[string]*roomState),
		done:       make(chan struct{}),
	}
}

// Start launches the presence sweep loop.
func (m *Manager) Start() {
	log.Println("🔄 Starting room manager...")
	go m.sweepLoop()
	log.Println("✓ Room manager started")
}

// CreateRoom allocates a room with an empty document at version 0 and
// registers the creator as its first participant.
func (m *Manager) CreateRoom(ctx context.Context, creatorID, creatorName, language string) (*models.RoomSnapshot, error) {
	if m.shuttingDown() {
		return nil, models.ErrShuttingDown
	}
	if language == "" {
		language = "plaintext"
	}
	room := models.Room{
		ID:        ksuid.New().String(),
		Language:  language,
		CreatorID: creatorID,
		Content:   "",
		Version:   0,
		CreatedAt: time.Now(),
	}

	if m.roomRepo != nil {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.BackendTimeout)
		defer cancel()
		if err := m.roomRepo.Create(ctx, &room); err != nil {
			return nil, models.Transient(fmt.Errorf("create room: %w", err))
		}
	}

	rs := &roomState{
		room:     room,
		clog:     changelog.New(room.ID, 0),
		feed:     newActivityFeed(m.cfg.ActivityCap),
		subs:     make(map[string]chan models.ServerEvent),
		colors:   make(map[string]string),
		limiters: make(map[string]*rate.Limiter),
		typing:   make(map[string]*time.Timer),
	}

	m.mu.Lock()
	m.rooms[room.ID] = rs
	m.mu.Unlock()

	log.Printf("✓ Room %s created by %s (language: %s)", room.ID, creatorID, language)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return m.admit(rs, creatorID, creatorName), nil
}

// JoinRoom admits a participant. Rejoining replaces the existing entry and
// keeps its color; a full room is rejected with ErrRoomFull.
func (m *Manager) JoinRoom(ctx context.Context, roomID, participantID, name string) (*models.RoomSnapshot, error) {
	if m.shuttingDown() {
		return nil, models.ErrShuttingDown
	}
	rs, err := m.state(ctx, roomID)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	_, rejoining := rs.colors[participantID]
	if !rejoining && m.presence.Count(roomID) >= m.cfg.MaxParticipants {
		return nil, fmt.Errorf("%w: cap %d reached", models.ErrRoomFull, m.cfg.MaxParticipants)
	}

	if rs.teardown != nil {
		rs.teardown.Stop()
		rs.teardown = nil
	}

	return m.admit(rs, participantID, name), nil
}

// admit registers a participant (first join or rejoin), assigns a color and
// announces the join. Callers hold the room lock.
func (m *Manager) admit(rs *roomState, participantID, name string) *models.RoomSnapshot {
	roomID := rs.room.ID

	color, rejoining := rs.colors[participantID]
	if !rejoining {
		used := make(map[string]bool, len(rs.colors))
		for _, c := range rs.colors {
			used[c] = true
		}
		color = assignColor(used, participantID)
		rs.colors[participantID] = color
		rs.limiters[participantID] = rate.NewLimiter(m.cfg.CursorRate, 1)
	}

	m.presence.Join(roomID, models.Participant{ID: participantID, Name: name, Color: color})

	act := models.NewActivity(models.ActivityJoin, participantID, name)
	m.record(rs, act)

	snap := m.snapshotLocked(rs)
	snap.Color = color
	return snap
}

// LeaveRoom removes a participant. When the room empties, teardown is
// scheduled after the grace period so a quick reconnect finds it intact.
func (m *Manager) LeaveRoom(roomID, participantID string) error {
	rs := m.lookup(roomID)
	if rs == nil {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return m.dropParticipant(rs, participantID, models.ActivityLeave)
}

// dropParticipant removes presence, color, limiter and typing timer, then
// announces the leave. Callers hold the room lock.
func (m *Manager) dropParticipant(rs *roomState, participantID string, why models.ActivityType) error {
	roomID := rs.room.ID
	p, ok := m.presence.Remove(roomID, participantID)
	if !ok {
		return fmt.Errorf("%w: %s in room %s", models.ErrParticipantNotFound, participantID, roomID)
	}

	delete(rs.colors, participantID)
	delete(rs.limiters, participantID)
	if t := rs.typing[participantID]; t != nil {
		t.Stop()
		delete(rs.typing, participantID)
	}

	m.record(rs, models.NewActivity(why, participantID, p.Name))

	if m.presence.Count(roomID) == 0 {
		m.scheduleTeardown(rs)
	}
	return nil
}

func (m *Manager) scheduleTeardown(rs *roomState) {
	roomID := rs.room.ID
	if rs.teardown != nil {
		rs.teardown.Stop()
	}
	rs.teardown = time.AfterFunc(m.cfg.GracePeriod, func() {
		m.teardown(roomID)
	})
	log.Printf("  Room %s empty, teardown in %s", roomID, m.cfg.GracePeriod)
}

// teardown archives and discards a room that stayed empty through the grace
// period.
func (m *Manager) teardown(roomID string) {
	m.mu.Lock()
	rs, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if m.presence.Count(roomID) > 0 {
		// someone reconnected between timer fire and this lock
		m.mu.Unlock()
		return
	}
	delete(m.rooms, roomID)
	m.mu.Unlock()

	rs.mu.Lock()
	for _, ch := range rs.subs {
		close(ch)
	}
	rs.subs = make(map[string]chan models.ServerEvent)
	room := rs.room
	rs.mu.Unlock()

	m.presence.DropRoom(roomID)

	if m.archive != nil {
		m.archive.ArchiveRoom(room)
	}
	if m.roomRepo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BackendTimeout)
		defer cancel()
		if err := m.roomRepo.Archive(ctx, roomID); err != nil {
			log.Printf("⚠️  Failed to archive room %s: %v", roomID, err)
		}
	}
	log.Printf("✓ Room %s torn down (final version %d)", roomID, room.Version)
}

// SubmitChange runs one edit through the conflict resolver and, if accepted,
// appends it to the change log and broadcasts the resulting delta. The call
// is atomic: the durable append happens before any in-memory mutation, so a
// transient failure leaves the room exactly as it was.
func (m *Manager) SubmitChange(ctx context.Context, roomID, participantID, opID string, baseVersion int64, op ot.Op) (*models.ChangeDelta, error) {
	if m.shuttingDown() {
		return nil, models.ErrShuttingDown
	}
	rs := m.lookup(roomID)
	if rs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	if opID == "" {
		// client sent no idempotency key; it loses retry dedupe, nothing else
		opID = uuid.NewString()
	} else if _, err := uuid.Parse(opID); err != nil {
		return nil, fmt.Errorf("%w: op id %q is not a UUID", models.ErrInvalidOperation, opID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.colors[participantID]; !ok {
		return nil, fmt.Errorf("%w: %s in room %s", models.ErrParticipantNotFound, participantID, roomID)
	}

	// retry after a transient failure that actually succeeded: report the
	// original acceptance instead of applying twice
	if seq, seen := rs.clog.Seen(opID); seen {
		delta := &models.ChangeDelta{RoomID: roomID, ParticipantID: participantID, OpID: opID, Version: seq}
		if ops, err := rs.clog.Since(seq - 1); err == nil && len(ops) > 0 {
			delta.Ops = ops[0].Ops
		}
		return delta, nil
	}

	history, err := rs.clog.Pending(baseVersion)
	if err != nil {
		return nil, err
	}

	res, err := ot.Merge(rs.room.Content, rs.room.Version, history, participantID, baseVersion, op)
	if err != nil {
		return nil, err
	}

	change := models.ChangeOp{
		OpID:          opID,
		RoomID:        roomID,
		ParticipantID: participantID,
		BaseVersion:   baseVersion,
		Seq:           res.Version,
		Ops:           res.Ops,
		Timestamp:     time.Now(),
	}

	if m.changeRepo != nil {
		record, err := models.NewChangeRecord(change)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidOperation, err)
		}
		ctx, cancel := context.WithTimeout(ctx, m.cfg.BackendTimeout)
		defer cancel()
		if err := m.changeRepo.Append(ctx, record); err != nil {
			return nil, models.Transient(fmt.Errorf("append change: %w", err))
		}
	}

	rs.room.Content = res.Doc
	rs.room.Version = res.Version
	rs.clog.Append(change)
	rs.clog.Prune(m.cfg.KeepOps, m.cfg.KeepAge)
	m.presence.Touch(roomID, participantID)
	m.checkpoint(rs)

	cursor := landingCursor(res.Doc, res.Ops, op)
	name := m.displayName(roomID, participantID)

	act := models.NewActivity(models.ActivityCodeChange, participantID, name)
	act.Change = &models.ChangeSummary{OpID: opID, Version: res.Version, Cursor: cursor}
	m.record(rs, act)

	delta := &models.ChangeDelta{
		RoomID:        roomID,
		ParticipantID: participantID,
		OpID:          opID,
		Ops:           res.Ops,
		Version:       res.Version,
		Cursor:        cursor,
	}
	rs.broadcast(models.ServerEvent{Type: models.EventChange, Delta: delta})

	return delta, nil
}

// durablePruneEvery is how many accepted ops pass between durable snapshot
// checkpoints and history pruning.
const durablePruneEvery = 256

// checkpoint periodically persists a document snapshot and prunes durable
// history that predates the retention horizon. The snapshot write runs first
// and gates the prune: if it fails the history stays, so the prune can never
// outrun the last durable snapshot. Callers hold the room lock.
func (m *Manager) checkpoint(rs *roomState) {
	if rs.room.Version%durablePruneEvery != 0 {
		return
	}
	if m.roomRepo == nil {
		return
	}
	room := rs.room
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BackendTimeout)
		defer cancel()
		if err := m.roomRepo.Save(ctx, &room); err != nil {
			log.Printf("⚠️  Failed to checkpoint room %s, skipping prune: %v", room.ID, err)
			return
		}
		if m.changeRepo == nil {
			return
		}
		checkpoint := room.Version - int64(m.cfg.KeepOps)
		if checkpoint <= 0 {
			return
		}
		if err := m.changeRepo.DeleteBefore(ctx, room.ID, checkpoint); err != nil {
			log.Printf("⚠️  Failed to prune durable change log for room %s: %v", room.ID, err)
		}
	}()
}

// landingCursor converts the applied op's end position into line/column for
// feed display.
func landingCursor(doc string, applied []ot.Op, submitted ot.Op) models.CursorPosition {
	offset := submitted.Pos
	if n := len(applied); n > 0 {
		last := applied[n-1]
		offset = last.Pos
		if last.Type == ot.OpInsert {
			offset += len([]rune(last.Text))
		}
	}
	line, col := ot.OffsetToLineCol(doc, offset)
	return models.CursorPosition{Line: line, Column: col}
}

// UpdateCursor stores the participant's cursor and broadcasts a cursor-move,
// coalesced per participant so fan-out stays bounded. The stored position is
// always current even when the broadcast is suppressed.
func (m *Manager) UpdateCursor(roomID, participantID string, cursor models.CursorPosition) error {
	rs := m.lookup(roomID)
	if rs == nil {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.colors[participantID]; !ok {
		return fmt.Errorf("%w: %s in room %s", models.ErrParticipantNotFound, participantID, roomID)
	}

	m.presence.Upsert(roomID, participantID, models.PresenceUpdate{Cursor: &cursor})

	if lim := rs.limiters[participantID]; lim != nil && !lim.Allow() {
		return nil
	}

	act := models.NewActivity(models.ActivityCursorMove, participantID, m.displayName(roomID, participantID))
	act.Cursor = &cursor
	rs.broadcast(models.ServerEvent{Type: models.EventActivity, Activity: &act})
	return nil
}

// SetTyping flips the typing flag and announces it. A set flag clears itself
// after the idle timeout unless another keystroke event arrives first.
func (m *Manager) SetTyping(roomID, participantID string, isTyping bool) error {
	rs := m.lookup(roomID)
	if rs == nil {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.colors[participantID]; !ok {
		return fmt.Errorf("%w: %s in room %s", models.ErrParticipantNotFound, participantID, roomID)
	}

	m.presence.Upsert(roomID, participantID, models.PresenceUpdate{Typing: &isTyping})

	if t := rs.typing[participantID]; t != nil {
		t.Stop()
		delete(rs.typing, participantID)
	}
	if isTyping {
		rs.typing[participantID] = time.AfterFunc(m.cfg.TypingIdle, func() {
			_ = m.SetTyping(roomID, participantID, false)
		})
	}

	kind := models.ActivityTyping
	if !isTyping {
		kind = models.ActivityStoppedTyping
	}
	act := models.NewActivity(kind, participantID, m.displayName(roomID, participantID))
	m.record(rs, act)
	return nil
}

// RelaySuggestion broadcasts an opaque AI-suggestion payload. The core never
// interprets it or calls the generator.
func (m *Manager) RelaySuggestion(roomID, participantID string, payload json.RawMessage) error {
	rs := m.lookup(roomID)
	if rs == nil {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	m.presence.Touch(roomID, participantID)
	act := models.NewActivity(models.ActivityAISuggestion, participantID, m.displayName(roomID, participantID))
	act.Suggestion = payload
	m.record(rs, act)
	return nil
}

// RelayVoice records a voice-start/voice-end marker. The offer/answer/ICE
// exchange itself is relayed elsewhere; only the markers reach the feed.
func (m *Manager) RelayVoice(roomID, participantID string, start bool) error {
	rs := m.lookup(roomID)
	if rs == nil {
		return fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	m.presence.Touch(roomID, participantID)
	kind := models.ActivityVoiceStart
	if !start {
		kind = models.ActivityVoiceEnd
	}
	act := models.NewActivity(kind, participantID, m.displayName(roomID, participantID))
	m.record(rs, act)
	return nil
}

// Subscribe registers a consumer of the room's event stream.
func (m *Manager) Subscribe(roomID, subscriberID string) (*Subscription, error) {
	rs := m.lookup(roomID)
	if rs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	ch := make(chan models.ServerEvent, subscriptionBuffer)
	rs.subs[subscriberID] = ch

	return &Subscription{
		ID:     subscriberID,
		C:      ch,
		ch:     ch,
		cancel: func() {
			rs.mu.Lock()
			defer rs.mu.Unlock()
			if cur, ok := rs.subs[subscriberID]; ok && cur == ch {
				delete(rs.subs, subscriberID)
				close(ch)
			}
		},
	}, nil
}

// Snapshot returns the room's current state.
func (m *Manager) Snapshot(roomID string) (*models.RoomSnapshot, error) {
	rs := m.lookup(roomID)
	if rs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return m.snapshotLocked(rs), nil
}

func (m *Manager) snapshotLocked(rs *roomState) *models.RoomSnapshot {
	return &models.RoomSnapshot{
		RoomID:       rs.room.ID,
		Language:     rs.room.Language,
		Content:      rs.room.Content,
		Version:      rs.room.Version,
		Participants: m.presence.Snapshot(rs.room.ID),
		Activity:     rs.feed.list(),
	}
}

// ChangesSince replays the accepted ops after the given version, for client
// catch-up. Falls back to the durable log when the in-memory window has been
// pruned.
func (m *Manager) ChangesSince(ctx context.Context, roomID string, version int64) ([]models.ChangeOp, error) {
	rs := m.lookup(roomID)
	if rs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	ops, err := rs.clog.Since(version)
	head := rs.room.Version
	rs.mu.Unlock()
	if err == nil {
		return ops, nil
	}
	if m.changeRepo == nil || version > head {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.BackendTimeout)
	defer cancel()
	records, repoErr := m.changeRepo.ListSince(ctx, roomID, version)
	if repoErr != nil {
		return nil, models.Transient(fmt.Errorf("list changes: %w", repoErr))
	}

	// The durable log is pruned too. A replay must be gapless from version+1
	// through head; anything else downgrades to version skew so the client
	// resyncs from a snapshot instead of applying a broken history.
	out := make([]models.ChangeOp, 0, len(records))
	next := version + 1
	for _, r := range records {
		if r.Seq != next {
			return nil, fmt.Errorf("%w: durable history after %d has a gap at %d", models.ErrVersionSkew, version, next)
		}
		op, convErr := r.ToChangeOp()
		if convErr != nil {
			return nil, fmt.Errorf("decode change %s: %w", r.ID, convErr)
		}
		out = append(out, op)
		next++
	}
	if next <= head {
		return nil, fmt.Errorf("%w: durable history after %d ends at %d before head %d", models.ErrVersionSkew, version, next-1, head)
	}
	return out, nil
}

// Activity returns the recent feed entries.
func (m *Manager) Activity(roomID string) ([]models.RoomActivity, error) {
	rs := m.lookup(roomID)
	if rs == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.feed.list(), nil
}

// record pushes a feed entry, broadcasts it and hands it to the archive
// sink. Callers hold the room lock.
func (m *Manager) record(rs *roomState, act models.RoomActivity) {
	rs.feed.push(act)
	rs.broadcast(models.ServerEvent{Type: models.EventActivity, Activity: &act})
	if m.archive != nil {
		m.archive.ArchiveActivity(rs.room.ID, act)
	}
}

func (m *Manager) displayName(roomID, participantID string) string {
	for _, p := range m.presence.Snapshot(roomID) {
		if p.ID == participantID {
			return p.Name
		}
	}
	return participantID
}

// lookup returns the live state for a room, or nil.
func (m *Manager) lookup(roomID string) *roomState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID]
}

// state returns the live state for a room, rehydrating it from the
// persistence backend if the room is durable but not in memory.
func (m *Manager) state(ctx context.Context, roomID string) (*roomState, error) {
	if rs := m.lookup(roomID); rs != nil {
		return rs, nil
	}
	if m.roomRepo == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}
	return m.rehydrate(ctx, roomID)
}

// rehydrate rebuilds in-memory room state from the latest durable snapshot
// plus a replay of the change history recorded after it.
func (m *Manager) rehydrate(ctx context.Context, roomID string) (*roomState, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.BackendTimeout)
	defer cancel()

	room, err := m.roomRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, models.Transient(fmt.Errorf("load room: %w", err))
	}
	if room == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrRoomNotFound, roomID)
	}

	if m.changeRepo != nil {
		records, err := m.changeRepo.ListSince(ctx, roomID, room.Version)
		if err != nil {
			return nil, models.Transient(fmt.Errorf("load changes: %w", err))
		}
		for _, r := range records {
			op, err := r.ToChangeOp()
			if err != nil {
				return nil, fmt.Errorf("decode change %s: %w", r.ID, err)
			}
			doc, err := ot.ApplySet(room.Content, op.Ops)
			if err != nil {
				return nil, fmt.Errorf("replay change %d: %w", op.Seq, err)
			}
			room.Content = doc
			room.Version = op.Seq
		}
	}

	rs := &roomState{
		room:     *room,
		clog:     changelog.New(roomID, room.Version),
		feed:     newActivityFeed(m.cfg.ActivityCap),
		subs:     make(map[string]chan models.ServerEvent),
		colors:   make(map[string]string),
		limiters: make(map[string]*rate.Limiter),
		typing:   make(map[string]*time.Timer),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.rooms[roomID]; ok {
		// lost the rehydration race, keep the winner
		return existing, nil
	}
	m.rooms[roomID] = rs
	log.Printf("✓ Room %s rehydrated at version %d", roomID, rs.room.Version)
	return rs, nil
}

// sweepLoop periodically expires participants that stopped sending events.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep expires inactive participants across all rooms. Exported so tests
// can trigger it without waiting for the ticker.
func (m *Manager) Sweep() {
	deadline := time.Now().Add(-m.cfg.PresenceTimeout)

	m.mu.RLock()
	states := make([]*roomState, 0, len(m.rooms))
	for _, rs := range m.rooms {
		states = append(states, rs)
	}
	m.mu.RUnlock()

	for _, rs := range states {
		rs.mu.Lock()
		for _, p := range m.presence.Expire(rs.room.ID, deadline) {
			log.Printf("  Expiring inactive participant %s from room %s", p.ID, rs.room.ID)
			delete(rs.colors, p.ID)
			delete(rs.limiters, p.ID)
			if t := rs.typing[p.ID]; t != nil {
				t.Stop()
				delete(rs.typing, p.ID)
			}
			m.record(rs, models.NewActivity(models.ActivityLeave, p.ID, p.Name))
		}
		if m.presence.Count(rs.room.ID) == 0 && rs.teardown == nil && len(rs.colors) == 0 {
			m.scheduleTeardown(rs)
		}
		rs.mu.Unlock()
	}
}

// shuttingDown reports whether Shutdown has been initiated. New work is
// refused from that point; in-flight calls finish normally.
func (m *Manager) shuttingDown() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// Shutdown closes every subscription and stops background loops.
func (m *Manager) Shutdown() {
	log.Println("🛑 Shutting down room manager...")
	close(m.done)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rs := range m.rooms {
		rs.mu.Lock()
		if rs.teardown != nil {
			rs.teardown.Stop()
		}
		for _, t := range rs.typing {
			t.Stop()
		}
		for _, ch := range rs.subs {
			close(ch)
		}
		rs.subs = make(map[string]chan models.ServerEvent)
		rs.mu.Unlock()
	}
	log.Println("✓ Room manager shutdown complete")
}
