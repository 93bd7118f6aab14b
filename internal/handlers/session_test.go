package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightline-game/nightline/internal/services"
	"github.com/nightline-game/nightline/internal/storage"
	"github.com/nightline-game/nightline/pkg/conditionals"
	"github.com/nightline-game/nightline/pkg/scenario"
)

func handlerTestNight() *scenario.Night {
	return &scenario.Night{
		ID:                 "night_one",
		Name:               "Night One",
		DefaultRingMinutes: 3,
		Flags: []scenario.FlagDefinition{
			{ID: "karen_confession", Category: "disclosure", Weight: 2},
			{ID: "emergency_dispatched", Category: "dispatch", Weight: 1},
		},
		EndStates: []scenario.EndStateCondition{
			{
				EndState: "exposed",
				Priority: 10,
				Scores: []conditionals.ScoreCondition{
					{Category: "disclosure", Op: conditionals.CompareGreaterOrEqual, Value: 2},
				},
			},
		},
		Endings: []scenario.EndingMapping{
			{EndState: "exposed", IfSurvived: "ending_truth_save", IfDied: "ending_truth_late"},
			{EndState: "absorbed", Regardless: "ending_absorbed"},
		},
		EndingTitles: map[string]string{"ending_truth_save": "The Whole Truth"},
		Survival: scenario.VictimSurvivalCondition{
			RequiresDispatch:       true,
			MaxDispatchTimeMinutes: 170,
			DispatchFlag:           "emergency_dispatched",
		},
		DefaultEndState: "absorbed",
		DefaultEnding:   "ending_absorbed",
		Calls: []scenario.Call{
			{
				ID:             "karen_first",
				Caller:         "Karen",
				StartAtMinutes: 10,
				Segments: []scenario.CallSegment{
					{
						ID:   "opening",
						Text: "I shouldn't be calling you.",
						Responses: []scenario.Response{
							{ID: "press", Text: "Why not?", SetFlags: []string{"karen_confession"}, Next: "confession"},
						},
					},
					{
						ID:   "confession",
						Text: "There's something I never told anyone.",
						Responses: []scenario.Response{
							{ID: "dispatch", Text: "I'm sending someone.", Dispatch: true, EndsCall: true},
						},
					},
				},
			},
		},
	}
}

func newSessionHandler(t *testing.T) (*SessionHandler, *storage.MockStorage) {
	t.Helper()
	mock := storage.NewMockStorage()
	mock.AddNight("night_one.json", handlerTestNight())
	mgr := services.NewSessionManager(mock, testLogger())
	return NewSessionHandler(testLogger(), mgr), mock
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) SessionView {
	t.Helper()
	var view SessionView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view), "body: %s", rec.Body.String())
	return view
}

func TestCreateSession(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{NightFile: "night_one.json"})
	require.Equal(t, http.StatusCreated, rec.Code)

	view := decodeView(t, rec)
	assert.Equal(t, "night_one", view.NightID)
	assert.Equal(t, "idle", view.CallState)
	assert.NotEmpty(t, view.ID)
}

func TestCreateSessionUnknownNight(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{NightFile: "missing.json"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateSessionMissingNightFile(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionNotFound(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/v1/sessions/0b51cd57-9f6e-4b8a-a9cb-5f1c87fbe5ab", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFullCallFlow(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{NightFile: "night_one.json"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID
	base := "/v1/sessions/" + id

	// Advance to the first call's start time.
	rec = doJSON(t, handler, http.MethodPost, base+"/tick", TickRequest{AdvanceMinutes: 10})
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	require.Equal(t, "incoming", view.CallState)
	assert.Equal(t, "Karen", view.Caller)

	// Answering before a call rings is rejected; the ringing call is not.
	rec = doJSON(t, handler, http.MethodPost, base+"/hangup", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, base+"/answer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	require.Equal(t, "awaiting_response", view.CallState)
	assert.Equal(t, "opening", view.SegmentID)
	require.Len(t, view.Responses, 1)
	assert.Equal(t, "press", view.Responses[0].ID)

	rec = doJSON(t, handler, http.MethodPost, base+"/respond", RespondRequest{ResponseID: "press"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, "confession", view.SegmentID)

	rec = doJSON(t, handler, http.MethodPost, base+"/respond", RespondRequest{ResponseID: "bogus"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, base+"/respond", RespondRequest{ResponseID: "dispatch"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, "idle", view.CallState)
	assert.Equal(t, []string{"karen_first"}, view.CompletedCalls)

	rec = doJSON(t, handler, http.MethodPost, base+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, "exposed", view.EndState)
	assert.Equal(t, "ending_truth_save", view.EndingID)
	assert.Equal(t, "The Whole Truth", view.EndingTitle)

	// A plain read after resolution carries the title too.
	rec = doJSON(t, handler, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, "ending_truth_save", view.EndingID)
	assert.Equal(t, "The Whole Truth", view.EndingTitle)
}

func TestResolveRecordsProgress(t *testing.T) {
	handler, mock := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{NightFile: "night_one.json", Profile: "operator7"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID

	rec = doJSON(t, handler, http.MethodPost, "/v1/sessions/"+id+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeView(t, rec)
	assert.Equal(t, "absorbed", view.EndState)

	p, err := mock.LoadProgress(context.Background(), "operator7")
	require.NoError(t, err)
	assert.Equal(t, []string{"night_one"}, p.CompletedNights)
	assert.Equal(t, "absorbed", p.EndStateByNight["night_one"])
}

func TestDeleteSession(t *testing.T) {
	handler, _ := newSessionHandler(t)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", CreateSessionRequest{NightFile: "night_one.json"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeView(t, rec).ID

	rec = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
