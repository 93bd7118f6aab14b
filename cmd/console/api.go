package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// FlagView mirrors the API's set-flag record.
type FlagView struct {
	ID           string `json:"flag_id"`
	SetAtMinutes int    `json:"set_time"`
}

// ResponseView mirrors one selectable response from the API.
type ResponseView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SessionView mirrors the API's session snapshot.
type SessionView struct {
	ID          string `json:"id"`
	NightID     string `json:"night_id"`
	NightName   string `json:"night_name"`
	TimeMinutes int    `json:"time_minutes"`

	CallState      string         `json:"call_state"`
	CallID         string         `json:"call_id,omitempty"`
	Caller         string         `json:"caller,omitempty"`
	SegmentID      string         `json:"segment_id,omitempty"`
	SegmentText    string         `json:"segment_text,omitempty"`
	SegmentMedia   string         `json:"segment_media,omitempty"`
	Responses      []ResponseView `json:"responses,omitempty"`
	MissedCalls    int            `json:"missed_calls"`
	CompletedCalls []string       `json:"completed_calls,omitempty"`
	Evidence       []string       `json:"evidence,omitempty"`
	Flags          []FlagView     `json:"flags,omitempty"`

	EndState    string `json:"end_state,omitempty"`
	EndingID    string `json:"ending_id,omitempty"`
	EndingTitle string `json:"ending_title,omitempty"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func listNights(client *http.Client, baseURL string) ([]string, map[string]string, error) {
	resp, err := client.Get(baseURL + "/v1/nights")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var nightMap map[string]string
	if err := json.Unmarshal(body, &nightMap); err != nil {
		return nil, nil, err
	}

	var names []string
	for name := range nightMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nightMap, nil
}

func createSession(client *http.Client, baseURL, nightFile, profile string) (*SessionView, error) {
	reqBody := map[string]string{
		"night_file": nightFile,
		"profile":    profile,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		baseURL+"/v1/sessions",
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	return decodeSessionView(resp, http.StatusCreated)
}

// postAction executes one session verb (tick, answer, respond, hangup,
// media-complete, resolve) and returns the refreshed view.
func postAction(client *http.Client, baseURL, sessionID, action string, body interface{}) (*SessionView, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/v1/sessions/%s/%s", baseURL, sessionID, action),
		"application/json",
		&buf,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	return decodeSessionView(resp, http.StatusOK)
}

func decodeSessionView(resp *http.Response, wantStatus int) (*SessionView, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil {
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("%s", errorResp.Error)
	}

	var view SessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &view, nil
}
