// Package session hosts one runner's live evaluation loop. A session is an
// actor: the gateway submits events, the actor owns the episode state and
// streams envelopes back through the runner's connection. Timeouts play
// auto-STAND so an abandoned episode still resolves.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"blackjack-lite/apps/server/internal/codec"
	"blackjack-lite/apps/server/internal/ledger"
	"blackjack-lite/apps/server/internal/suite"
	"blackjack-lite/blackjack"
	"blackjack-lite/env"
)

// Event types for the actor message queue
type EventType int

const (
	EventEpisodeStart EventType = iota
	EventTurn
	EventAbort
	EventConnLost
	EventConnResume
	EventClose
)

// Event represents a message to the session actor
type Event struct {
	Type      EventType
	Start     *codec.EpisodeStartRequest
	Reply     string
	Timestamp time.Time
	Response  chan error
}

var ErrSessionClosed = errors.New("session closed")

const (
	turnTimeLimitSec = int32(30)
	maxAutoActions   = 3

	// STAND is legal for every live hand, so the timeout reply always lands.
	autoReply = "<answer>STAND</answer>"
)

// Session represents one runner's evaluation loop with an actor model
type Session struct {
	ID         string
	RunnerID   uint64
	RunnerName string

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once

	// Active episode state. episodeID is empty until the first deal.
	episode          *env.Episode
	episodeID        string
	episodeIndex     int
	episodeSeed      int64
	episodeRules     blackjack.Rules
	episodeStartedAt time.Time
	episodeTape      []ledger.EventItem
	suiteID          string // empty for free play
	stageIndex       int

	// Event channel for actor pattern
	events chan Event
	done   chan struct{}

	// Server sequence for event ordering
	serverSeq uint64

	// Turn timer and lifecycle metadata.
	turnDeadline time.Time
	autoActions  int
	online       bool
	lastSeen     time.Time

	// Callback delivering frames to the runner's active connection.
	send func(data []byte)

	ledger   ledger.Service
	progress suite.Service
	suites   *suite.Registry
}

// New creates a session actor for one authenticated runner.
func New(
	id string,
	runnerID uint64,
	runnerName string,
	sendFn func(data []byte),
	ledgerService ledger.Service,
	progressService suite.Service,
	registry *suite.Registry,
) *Session {
	s := &Session{
		ID:         id,
		RunnerID:   runnerID,
		RunnerName: runnerName,
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		send:       sendFn,
		online:     true,
		lastSeen:   time.Now(),
		ledger:     ledgerService,
		progress:   progressService,
		suites:     registry,
	}

	go s.run()

	log.Printf("[Session %s] Created for runner %d (%s)", id, runnerID, runnerName)
	return s
}

// run is the main actor loop
func (s *Session) run() {
	// Sub-second heartbeat for the turn timer.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.events:
			err := s.handleEvent(event)
			if event.Response != nil {
				event.Response <- err
			}
		case <-ticker.C:
			s.tick()
		case <-s.done:
			log.Printf("[Session %s] Actor stopped", s.ID)
			return
		}
	}
}

func (s *Session) handleEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed && e.Type != EventClose {
		return ErrSessionClosed
	}
	if !e.Timestamp.IsZero() {
		s.lastSeen = e.Timestamp
	}

	switch e.Type {
	case EventEpisodeStart:
		return s.handleEpisodeStart(e.Start, e.Timestamp)
	case EventTurn:
		return s.handleTurn(e.Reply, e.Timestamp)
	case EventAbort:
		return s.handleAbort()
	case EventConnLost:
		return s.handleConnLost(e.Timestamp)
	case EventConnResume:
		return s.handleConnResume(e.Timestamp)
	case EventClose:
		s.stopLocked()
		return nil
	default:
		return fmt.Errorf("unknown event type: %d", e.Type)
	}
}

func (s *Session) handleEpisodeStart(req *codec.EpisodeStartRequest, now time.Time) error {
	if req == nil {
		return fmt.Errorf("missing episode start payload")
	}
	if s.episode != nil && !s.episode.Done() {
		return fmt.Errorf("episode in progress; abort it first")
	}
	if now.IsZero() {
		now = time.Now()
	}

	var (
		rules blackjack.Rules
		seed  int64
		opts  env.Options
	)

	suiteID := ""
	stageIndex := 0
	if req.Suite != "" {
		def, ok := s.suites.Get(req.Suite)
		if !ok {
			return fmt.Errorf("unknown suite %q", req.Suite)
		}
		stage, ok := def.Stage(req.Stage)
		if !ok {
			return fmt.Errorf("suite %s has no stage %d", def.ID, req.Stage)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		progress, err := s.progress.GetProgress(ctx, s.RunnerID, def)
		cancel()
		if err != nil {
			return fmt.Errorf("load suite progress: %w", err)
		}
		if req.Stage > progress.HighestUnlocked {
			return fmt.Errorf("stage %d is locked", req.Stage)
		}

		suiteID = def.ID
		stageIndex = stage.Index
		rules = stage.Rules
		seed = stage.SeedBase + int64(progress.Stages[stage.Index].EpisodesPlayed)
		// Stage episodes run with the default sampling budget so every
		// runner is graded on the same footing.
		opts = env.Options{UseThink: req.UseThink}
	} else {
		var err error
		rules, err = codec.RulesFromSpec(req.Rules)
		if err != nil {
			return err
		}
		seed = req.Seed
		if seed == 0 {
			seed = now.UnixNano()
		}
		opts = env.Options{
			EVSamples: clampEVSamples(req.EVSamples),
			MaxTurns:  clampMaxTurns(req.MaxTurns),
			UseThink:  req.UseThink,
		}
	}

	episode, err := env.NewEpisode(env.Example{Seed: seed, Rules: rules}, opts)
	if err != nil {
		return fmt.Errorf("deal failed: %w", err)
	}

	s.episodeIndex++
	s.episode = episode
	s.episodeID = fmt.Sprintf("%s_e%d", s.ID, s.episodeIndex)
	s.episodeSeed = seed
	s.episodeRules = rules
	s.episodeStartedAt = now
	s.episodeTape = nil
	s.suiteID = suiteID
	s.stageIndex = stageIndex
	s.autoActions = 0

	first := episode.FirstState()
	s.sendEnvelope(codec.EpisodeStartPayload(first, episode.Question()), true)

	opening, err := episode.LegalActions()
	if err != nil {
		return err
	}
	s.sendEnvelope(codec.StatePromptPayload(first, episode.Question(), opening), true)
	s.setTurnDeadlineLocked(now)

	log.Printf("[Session %s] Episode %s dealt (seed=%d suite=%q)", s.ID, s.episodeID, seed, suiteID)
	return nil
}

func (s *Session) handleTurn(reply string, now time.Time) error {
	if s.episode == nil {
		return fmt.Errorf("no active episode")
	}
	if s.episode.Done() {
		return fmt.Errorf("episode complete; start a new one")
	}
	if now.IsZero() {
		now = time.Now()
	}
	return s.applyTurn(reply, now)
}

// applyTurn runs one reply through the environment and streams the outcome.
// Shared by runner turns and timeout auto-actions.
func (s *Session) applyTurn(reply string, now time.Time) error {
	allowed, err := s.episode.LegalActions()
	if err != nil {
		return err
	}

	res, err := s.episode.Submit(reply)
	if err != nil {
		return err
	}

	if res.Invalid {
		s.sendEnvelope(codec.CorrectivePayload(res.Message, allowed), true)
		if res.Done {
			// Turn budget burned out on corrective exchanges.
			s.finishEpisode()
			return nil
		}
		s.setTurnDeadlineLocked(now)
		return nil
	}

	s.sendEnvelope(codec.ActionResultPayload(res), true)

	if res.Settlement != nil {
		s.sendEnvelope(codec.SettlementPayload(res.Message, res.Settlement), true)
		s.finishEpisode()
		return nil
	}
	if res.Done {
		s.finishEpisode()
		return nil
	}

	snap := s.episode.Snapshot()
	next, err := s.episode.LegalActions()
	if err != nil {
		return err
	}
	s.sendEnvelope(codec.StatePromptPayload(snap, res.Message, next), true)
	s.setTurnDeadlineLocked(now)
	return nil
}

func (s *Session) handleAbort() error {
	if s.episode == nil || s.episode.Done() {
		return fmt.Errorf("no active episode")
	}
	s.episode.Abort()
	log.Printf("[Session %s] Episode %s aborted by runner", s.ID, s.episodeID)
	s.finishEpisode()
	return nil
}

func (s *Session) handleConnLost(ts time.Time) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	s.online = false
	s.lastSeen = ts
	log.Printf("[Session %s] Runner %d connection lost", s.ID, s.RunnerID)
	return nil
}

func (s *Session) handleConnResume(ts time.Time) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	s.online = true
	s.lastSeen = ts
	log.Printf("[Session %s] Runner %d connection resumed", s.ID, s.RunnerID)

	if s.episode == nil || s.episode.Done() {
		return nil
	}

	// Re-send the pending prompt so the runner can pick the hand back up.
	// Delivery only: the tape already holds the original prompt.
	snap := s.episode.Snapshot()
	active, ok := snap.ActiveHand()
	if !ok {
		return nil
	}
	allowed, err := s.episode.LegalActions()
	if err != nil {
		return err
	}
	message := env.StateMessage(active.Cards, snap.DealerUp, snap.Rules, allowed)
	s.sendEnvelope(codec.StatePromptPayload(snap, message, allowed), false)
	s.setTurnDeadlineLocked(ts)
	return nil
}

// tick drives the turn timer: a silent runner gets STAND played for it, and
// after maxAutoActions the episode is cut loose.
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.episode == nil || s.episode.Done() {
		return
	}
	if s.turnDeadline.IsZero() {
		return
	}
	now := time.Now()
	if now.Before(s.turnDeadline) {
		return
	}

	s.autoActions++
	if s.autoActions > maxAutoActions {
		log.Printf("[Session %s] Episode %s abandoned after %d auto-actions", s.ID, s.episodeID, maxAutoActions)
		s.sendError("episode_abandoned", fmt.Sprintf("no reply after %d auto-actions; episode aborted", maxAutoActions))
		s.episode.Abort()
		s.finishEpisode()
		return
	}

	log.Printf("[Session %s] Turn timeout on %s -> auto STAND (%d/%d)", s.ID, s.episodeID, s.autoActions, maxAutoActions)
	s.sendError("turn_timeout", fmt.Sprintf("no reply in %ds; STAND submitted", turnTimeLimitSec))
	if err := s.applyTurn(autoReply, now); err != nil {
		log.Printf("[Session %s] auto action failed: %v", s.ID, err)
		s.clearTurnDeadlineLocked()
	}
}

// finishEpisode emits the score, advances suite progress for settled
// episodes, and hands the tape to the ledger. Caller holds s.mu.
func (s *Session) finishEpisode() {
	s.clearTurnDeadlineLocked()
	if s.episode == nil {
		return
	}

	s.sendEnvelope(codec.ScorePayload(s.episode), true)

	score := s.episode.Score()
	if s.suiteID != "" && s.episode.Settled() {
		s.recordSuiteEpisode(score)
	}
	s.persistEpisodeHistory(score)
}

func (s *Session) recordSuiteEpisode(score env.Score) {
	def, ok := s.suites.Get(s.suiteID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	progress, err := s.progress.RecordEpisode(ctx, s.RunnerID, def, s.stageIndex, suite.EpisodeResult{
		DeltaEVSum: score.DeltaEVSum,
		Reward:     score.Reward,
	})
	if err != nil {
		log.Printf("[Session %s] suite progress update failed: %v", s.ID, err)
		return
	}

	stage, _ := def.Stage(s.stageIndex)
	sp := progress.Stages[s.stageIndex]
	s.sendEnvelope(&codec.SuiteProgressPayload{
		SuiteID:           def.ID,
		Stage:             s.stageIndex,
		EpisodesPlayed:    sp.EpisodesPlayed,
		EpisodesTotal:     stage.Episodes,
		MeanDeltaEV:       sp.MeanDeltaEV,
		TargetMeanDeltaEV: stage.TargetMeanDeltaEV,
		Cleared:           sp.Cleared,
		HighestUnlocked:   progress.HighestUnlocked,
	}, true)
}

func (s *Session) persistEpisodeHistory(score env.Score) {
	if s.ledger == nil || s.episodeID == "" {
		return
	}

	summary := map[string]any{
		"session_id":      s.ID,
		"episode_index":   s.episodeIndex,
		"seed":            s.episodeSeed,
		"rules":           s.episodeRules,
		"settled":         s.episode.Settled(),
		"turns":           s.episode.Turns(),
		"auto_actions":    s.autoActions,
		"reward":          score.Reward,
		"delta_ev_sum":    score.DeltaEVSum,
		"first_action_ev": score.FirstActionEV,
		"realized_return": score.RealizedReturn,
		"strict_format":   score.StrictFormat,
	}
	if s.suiteID != "" {
		summary["suite"] = s.suiteID
		summary["stage"] = s.stageIndex
	}

	events := append([]ledger.EventItem(nil), s.episodeTape...)
	go s.ledger.UpsertEpisodeHistoryWithEvents(s.RunnerID, s.episodeID, s.episodeStartedAt, summary, events)
}

// sendEnvelope wraps, stamps, and delivers one payload. When record is set
// the frame also lands in the episode tape and the live event stream; resume
// re-prompts pass false. Caller holds s.mu.
func (s *Session) sendEnvelope(payload any, record bool) {
	envelope := codec.Wrap(s.episodeID, s.nextSeq(), payload)
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[Session %s] Failed to marshal message: %v", s.ID, err)
		return
	}
	if record {
		s.appendEpisodeTape(envelope, data)
		s.appendLiveLedgerEvent(envelope, data)
	}
	if s.send != nil {
		s.send(data)
	}
}

func (s *Session) sendError(code, message string) {
	s.sendEnvelope(&codec.ErrorPayload{Code: code, Message: message}, false)
}

func (s *Session) appendEpisodeTape(envelope *codec.ServerEnvelope, data []byte) {
	if s.episodeID == "" {
		return
	}
	item := ledger.EventItem{
		Seq:         envelope.ServerSeq,
		EventType:   codec.PayloadType(envelope),
		EnvelopeB64: base64.StdEncoding.EncodeToString(data),
	}
	if envelope.ServerTsMs > 0 {
		v := envelope.ServerTsMs
		item.ServerTsMs = &v
	}
	s.episodeTape = append(s.episodeTape, item)
}

func (s *Session) appendLiveLedgerEvent(envelope *codec.ServerEnvelope, data []byte) {
	if s.ledger == nil || s.episodeID == "" {
		return
	}
	// Keep a stable copy to avoid accidental reuse by callers.
	encoded := make([]byte, len(data))
	copy(encoded, data)
	go s.ledger.AppendLiveEvent(s.suiteID, s.episodeID, envelope, encoded)
}

func (s *Session) nextSeq() uint64 {
	s.serverSeq++
	return s.serverSeq
}

func (s *Session) setTurnDeadlineLocked(now time.Time) {
	s.turnDeadline = now.Add(time.Duration(turnTimeLimitSec) * time.Second)
}

func (s *Session) clearTurnDeadlineLocked() {
	s.turnDeadline = time.Time{}
}

// SubmitEvent sends an event to the actor
func (s *Session) SubmitEvent(e Event) error {
	e.Timestamp = time.Now()
	if e.Response == nil {
		e.Response = make(chan error, 1)
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}

	select {
	case s.events <- e:
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case err := <-e.Response:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// SetSink swaps the delivery callback when the runner reconnects.
func (s *Session) SetSink(sendFn func(data []byte)) {
	s.mu.Lock()
	s.send = sendFn
	s.mu.Unlock()
}

// Stop shuts down the session actor
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	s.closed = true
	s.clearTurnDeadlineLocked()
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// IsIdleFor reports whether the session has been offline with no live
// episode for at least ttl. Mid-episode sessions are never idle; the turn
// timer is still resolving them.
func (s *Session) IsIdleFor(ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return true
	}
	if s.online {
		return false
	}
	if s.episode != nil && !s.episode.Done() {
		return false
	}
	if s.lastSeen.IsZero() {
		return false
	}
	return time.Since(s.lastSeen) >= ttl
}

func clampEVSamples(n int) int {
	const maxEVSamples = 2000
	if n < 0 {
		return 0
	}
	if n > maxEVSamples {
		return maxEVSamples
	}
	return n
}

func clampMaxTurns(n int) int {
	const maxMaxTurns = 48
	if n < 0 {
		return 0
	}
	if n > maxMaxTurns {
		return maxMaxTurns
	}
	return n
}
