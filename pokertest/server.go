package pokertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/pandac/pokersync/api"
	"github.com/pandac/pokersync/poker/event"
	"github.com/pandac/pokersync/poker/model"
	"github.com/pandac/pokersync/poker/session"
)

// Server is an in-process fake of the authoritative estimation service. It
// serves just enough of the REST surface for client tests and broadcasts the
// same push events the real service would, through a topic-aware hub.
type Server struct {
	httpSrv *httptest.Server
	router  *mux.Router
	hub     *Hub

	mu       sync.Mutex
	sessions map[string]*sessionState
	failNext map[string]bool
	nextID   int64
}

type sessionState struct {
	session model.Session
	stories map[int64]*model.Story
	users   map[int64]*model.User
	votes   map[int64]map[int64]api.VoteResponse // storyID -> userID -> vote
}

// NewServer starts the fake service. Callers must Close it.
func NewServer() *Server {
	s := &Server{
		router:   mux.NewRouter(),
		hub:      NewHub(),
		sessions: make(map[string]*sessionState),
		failNext: make(map[string]bool),
		nextID:   100,
	}
	go s.hub.Run()
	s.setupRoutes()
	s.httpSrv = httptest.NewServer(s.router)
	return s
}

// URL returns the REST base URL.
func (s *Server) URL() string {
	return s.httpSrv.URL
}

// WSURL returns the push endpoint URL.
func (s *Server) WSURL() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http") + "/ws"
}

// Hub exposes the push hub for direct publishing and kick simulation.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close shuts the fake service down.
func (s *Server) Close() {
	s.hub.Stop()
	s.httpSrv.Close()
}

// FailNext makes the next request of the given operation fail with a 500.
// Operations: "reveal", "vote", "current-story", "finalize".
func (s *Server) FailNext(op string) {
	s.mu.Lock()
	s.failNext[op] = true
	s.mu.Unlock()
}

func (s *Server) shouldFail(op string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext[op] {
		delete(s.failNext, op)
		return true
	}
	return false
}

func (s *Server) setupRoutes() {
	r := s.router.PathPrefix("/api").Subrouter()

	r.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	r.HandleFunc("/sessions/{code}", s.handleGetSession).Methods("GET")
	r.HandleFunc("/sessions/{code}/join", s.handleJoin).Methods("POST")
	r.HandleFunc("/sessions/{code}/users", s.handleGetUsers).Methods("GET")
	r.HandleFunc("/sessions/{code}/users/{id}/leave", s.handleLeave).Methods("POST")
	r.HandleFunc("/sessions/{code}/current-story", s.handleSetCurrentStory).Methods("POST")
	r.HandleFunc("/sessions/{code}/reveal", s.handleReveal).Methods("POST")
	r.HandleFunc("/sessions/{code}/reset-votes", s.handleResetVotes).Methods("POST")
	r.HandleFunc("/sessions/{code}/stories", s.handleCreateStory).Methods("POST")
	r.HandleFunc("/sessions/{code}/stories", s.handleGetStories).Methods("GET")
	r.HandleFunc("/sessions/{code}/stories/{id}", s.handleGetStory).Methods("GET")
	r.HandleFunc("/sessions/{code}/stories/{id}/finalize", s.handleFinalize).Methods("POST")
	r.HandleFunc("/sessions/{code}/stories/{id}/reset", s.handleResetStory).Methods("POST")
	r.HandleFunc("/sessions/{code}/stories/{id}/votes", s.handleCastVote).Methods("POST")
	r.HandleFunc("/sessions/{code}/stories/{id}/votes", s.handleGetVotes).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) allocID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) state(code string) *sessionState {
	return s.sessions[code]
}

// Seed installs a prebuilt session for tests that don't exercise create/join.
func (s *Server) Seed(sess model.Session, stories []model.Story, users []model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &sessionState{
		session: sess,
		stories: make(map[int64]*model.Story),
		users:   make(map[int64]*model.User),
		votes:   make(map[int64]map[int64]api.VoteResponse),
	}
	for i := range stories {
		story := stories[i]
		st.stories[story.ID] = &story
	}
	for i := range users {
		user := users[i]
		st.users[user.ID] = &user
	}
	s.sessions[sess.SessionCode] = st
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	moderator := model.User{
		ID:          s.allocID(),
		Name:        req.ModeratorName,
		Avatar:      req.ModeratorAvatar,
		IsActive:    true,
		IsModerator: true,
		JoinedAt:    time.Now(),
	}
	sess := model.Session{
		ID:               s.allocID(),
		SessionCode:      model.GenerateSessionCode(),
		Name:             req.Name,
		Description:      req.Description,
		SizingMethod:     req.SizingMethod,
		CustomValues:     req.CustomValues,
		ModeratorID:      moderator.ID,
		ModeratorCanVote: req.ModeratorCanVote,
		AllowChangeVote:  true,
		IsActive:         true,
		CreatedAt:        time.Now(),
	}
	if req.Settings != nil {
		sess.TimerEnabled = req.Settings.TimerEnabled
		sess.TimerDuration = req.Settings.TimerDuration
		sess.AllowChangeVote = req.Settings.AllowChangeVote
	}
	st := &sessionState{
		session: sess,
		stories: make(map[int64]*model.Story),
		users:   map[int64]*model.User{moderator.ID: &moderator},
		votes:   make(map[int64]map[int64]api.VoteResponse),
	}
	s.sessions[sess.SessionCode] = st
	s.mu.Unlock()

	respondJSON(w, http.StatusCreated, api.CreateSessionResponse{
		Session:     sess,
		Token:       "test-token-" + sess.SessionCode,
		ModeratorID: moderator.ID,
		Moderator:   moderator,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	sess := st.session
	s.mu.Unlock()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req api.JoinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	user := model.User{
		ID:         s.allocID(),
		Name:       req.Name,
		Avatar:     req.Avatar,
		IsActive:   true,
		IsObserver: req.IsObserver,
		JoinedAt:   time.Now(),
	}
	st.users[user.ID] = &user
	sess := st.session
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicUsers), map[string]interface{}{
		"type":     event.TypeUserJoined,
		"userId":   user.ID,
		"userName": user.Name,
	})

	respondJSON(w, http.StatusOK, api.JoinSessionResponse{
		SessionCode: code,
		UserID:      user.ID,
		User:        user,
		Session:     sess,
		Token:       "test-token-" + code,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code := vars["code"]
	userID, _ := strconv.ParseInt(vars["id"], 10, 64)

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	var name string
	if user, ok := st.users[userID]; ok {
		user.IsActive = false
		name = user.Name
	}
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicUsers), map[string]interface{}{
		"type":     event.TypeUserLeft,
		"userId":   userID,
		"userName": name,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	activeOnly := r.URL.Query().Get("activeOnly") != "false"

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	users := make([]model.User, 0, len(st.users))
	for _, u := range st.users {
		if activeOnly && !u.IsActive {
			continue
		}
		users = append(users, *u)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleSetCurrentStory(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("current-story") {
		respondError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	code := mux.Vars(r)["code"]
	storyID, _ := strconv.ParseInt(r.URL.Query().Get("storyId"), 10, 64)

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	story, ok := st.stories[storyID]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	story.Status = model.StatusInProgress
	st.session.CurrentStoryID = &story.ID
	st.session.VotesRevealed = false
	sess := st.session
	storyCopy := *story
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicStory), map[string]interface{}{
		"type":  event.TypeStoryActivated,
		"story": storyCopy,
	})
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("reveal") {
		respondError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	code := mux.Vars(r)["code"]

	s.mu.Lock()
	st := s.state(code)
	if st == nil || st.session.CurrentStoryID == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "no active story")
		return
	}
	st.session.VotesRevealed = true
	storyID := *st.session.CurrentStoryID
	votes := make([]api.VoteResponse, 0)
	for _, v := range st.votes[storyID] {
		votes = append(votes, v)
	}
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicReveal), map[string]interface{}{
		"type":        event.TypeVotesRevealed,
		"storyId":     storyID,
		"sessionCode": code,
	})
	respondJSON(w, http.StatusOK, api.VoteReveal{StoryID: storyID, Votes: votes})
}

func (s *Server) handleResetVotes(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	s.mu.Lock()
	st := s.state(code)
	if st == nil || st.session.CurrentStoryID == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "no active story")
		return
	}
	st.session.VotesRevealed = false
	storyID := *st.session.CurrentStoryID
	delete(st.votes, storyID)
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicReveal), map[string]interface{}{
		"type":        event.TypeVotesReset,
		"storyId":     storyID,
		"sessionCode": code,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	var req api.CreateStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	story := model.Story{
		ID:          s.allocID(),
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Status:      model.StatusNotEstimated,
		OrderIndex:  len(st.stories),
		CreatedAt:   time.Now(),
	}
	st.stories[story.ID] = &story
	s.mu.Unlock()

	respondJSON(w, http.StatusCreated, story)
}

func (s *Server) handleGetStories(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	stories := make([]model.Story, 0, len(st.stories))
	for _, story := range st.stories {
		stories = append(stories, *story)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, stories)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code := vars["code"]
	storyID, _ := strconv.ParseInt(vars["id"], 10, 64)

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	story, ok := st.stories[storyID]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	storyCopy := *story
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, storyCopy)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("finalize") {
		respondError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	vars := mux.Vars(r)
	code := vars["code"]
	storyID, _ := strconv.ParseInt(vars["id"], 10, 64)

	var req api.FinalizeEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	story, ok := st.stories[storyID]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	story.Status = model.StatusCompleted
	story.FinalEstimate = req.FinalEstimate
	story.EstimateNotes = req.Notes
	storyCopy := *story
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicStory), map[string]interface{}{
		"type":  event.TypeStoryFinalized,
		"story": storyCopy,
	})
	respondJSON(w, http.StatusOK, storyCopy)
}

func (s *Server) handleResetStory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code := vars["code"]
	storyID, _ := strconv.ParseInt(vars["id"], 10, 64)

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	story, ok := st.stories[storyID]
	if !ok {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "story not found")
		return
	}
	story.Status = model.StatusInProgress
	story.FinalEstimate = ""
	story.EstimateNotes = ""
	delete(st.votes, storyID)
	if st.session.CurrentStoryID != nil && *st.session.CurrentStoryID == storyID {
		st.session.VotesRevealed = false
	}
	storyCopy := *story
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicStory), map[string]interface{}{
		"type":  event.TypeStoryReset,
		"story": storyCopy,
	})
	respondJSON(w, http.StatusOK, storyCopy)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	if s.shouldFail("vote") {
		respondError(w, http.StatusInternalServerError, "injected failure")
		return
	}
	vars := mux.Vars(r)
	code := vars["code"]
	storyID, _ := strconv.ParseInt(vars["id"], 10, 64)

	var req api.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	user := st.users[req.UserID]
	if user == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if st.votes[storyID] == nil {
		st.votes[storyID] = make(map[int64]api.VoteResponse)
	}
	vote := api.VoteResponse{
		ID:         s.allocID(),
		Estimate:   req.Estimate,
		Confidence: req.Confidence,
		VotedAt:    time.Now(),
		User: api.VoteUser{
			ID:          user.ID,
			Name:        user.Name,
			IsModerator: user.IsModerator,
			IsObserver:  user.IsObserver,
		},
	}
	st.votes[storyID][req.UserID] = vote
	count := len(st.votes[storyID])
	s.mu.Unlock()

	s.hub.Publish(session.Topic(code, session.TopicVotes), map[string]interface{}{
		"type":      event.TypeVoteCast,
		"storyId":   storyID,
		"voteCount": count,
	})
	respondJSON(w, http.StatusCreated, model.Vote{
		ID:         vote.ID,
		StoryID:    storyID,
		UserID:     req.UserID,
		Estimate:   req.Estimate,
		Confidence: req.Confidence,
		VotedAt:    vote.VotedAt,
	})
}

// handleGetVotes withholds estimates until votes are revealed, mirroring the
// real service's vote secrecy.
func (s *Server) handleGetVotes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	code := vars["code"]
	storyID, _ := strconv.ParseInt(vars["id"], 10, 64)

	s.mu.Lock()
	st := s.state(code)
	if st == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	revealed := st.session.VotesRevealed
	votes := make([]api.VoteResponse, 0, len(st.votes[storyID]))
	for _, v := range st.votes[storyID] {
		if !revealed {
			v.Estimate = ""
			v.Confidence = 0
		}
		votes = append(votes, v)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, votes)
}

// PublishTimerChange broadcasts a timer settings event, something only the
// real service's session-update path does.
func (s *Server) PublishTimerChange(code string, enabled bool, duration int) {
	s.hub.Publish(session.Topic(code, session.TopicTimer), map[string]interface{}{
		"type":          event.TypeTimerSettingsChanged,
		"timerEnabled":  enabled,
		"timerDuration": duration,
	})
}
