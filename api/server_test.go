// ABOUTME: HTTP API tests: routing, status codes, and the full approve/feedback flow.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/autosci/orchestrator/executor"
	"github.com/autosci/orchestrator/workflow"
)

// cannedStages drives a happy-path pipeline without any model calls.
type cannedStages struct{}

func (cannedStages) Discover(_ context.Context, _ workflow.RecordView) workflow.Outcome {
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch: workflow.Patch{Source: &workflow.SourceRef{
			Locator:     "https://example.com/insurance.csv",
			LocatorKind: workflow.LocatorDirect,
		}},
	}
}

func (cannedStages) Validate(_ context.Context, _ workflow.RecordView) workflow.Outcome {
	return workflow.Outcome{Status: workflow.StatusCheckpoint}
}

func (cannedStages) GenerateAnalysis(_ context.Context, _ workflow.RecordView) workflow.Outcome {
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Artifacts: map[string]string{workflow.ArtifactAnalysisCode: "df = load()"}},
	}
}

func (cannedStages) GenerateTraining(_ context.Context, _ workflow.RecordView) workflow.Outcome {
	return workflow.Outcome{
		Status: workflow.StatusOK,
		Patch:  workflow.Patch{Artifacts: map[string]string{workflow.ArtifactTrainingCode: "model.fit(df)"}},
	}
}

func (cannedStages) Correct(_ context.Context, _ workflow.RecordView, _ string) workflow.Outcome {
	return workflow.Outcome{Status: workflow.StatusFail, FailureReason: "not scripted"}
}

type cleanExecutor struct{}

func (cleanExecutor) Submit(_ context.Context, _ string) (executor.Result, error) {
	return executor.Result{Logs: "DATA_SCHEMA_LOCKED:['age', 'charges']\nok"}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *workflow.Driver) {
	t.Helper()
	driver := workflow.NewDriver(workflow.NewMemoryStore(), cannedStages{}, cleanExecutor{}, workflow.DriverConfig{
		HealCooldown: time.Millisecond,
		RelayWait:    time.Millisecond,
	})
	t.Cleanup(driver.Close)
	srv := httptest.NewServer(NewServer(driver))
	t.Cleanup(srv.Close)
	return srv, driver
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func getStatus(t *testing.T, url, id string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url + "/workflow/" + id + "/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func waitForAPIStatus(t *testing.T, url, id, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var last map[string]any
	for time.Now().Before(deadline) {
		code, body := getStatus(t, url, id)
		if code == http.StatusOK && body["status"] == want {
			return body
		}
		last = body
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("never reached status %q; last: %v", want, last)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}
}

func TestStartValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/workflow", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing goal: status = %d", resp.StatusCode)
	}

	resp, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "predict charges"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start: status = %d", resp.StatusCode)
	}
	if body["status"] != "started" || body["id"] == "" {
		t.Errorf("start body = %v", body)
	}
}

func TestUnknownWorkflowIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	id := "01JCZZZZZZZZZZZZZZZZZZZZZZ"

	if code, _ := getStatus(t, srv.URL, id); code != http.StatusNotFound {
		t.Errorf("status: code = %d", code)
	}
	resp, _ := postJSON(t, srv.URL+"/workflow/"+id+"/approve", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("approve: code = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/workflow/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete: code = %d", resp.StatusCode)
	}
}

func TestWrongCheckpointIs409(t *testing.T) {
	srv, _ := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g"})
	id := body["id"].(string)

	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)

	// Parked at the dataset checkpoint; schema and feedback decisions are the
	// wrong gate.
	resp, _ := postJSON(t, srv.URL+"/workflow/"+id+"/schema/approve", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("schema approve: code = %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, srv.URL+"/workflow/"+id+"/feedback", map[string]any{"satisfied": true})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("feedback: code = %d", resp.StatusCode)
	}
}

func TestFullFlowOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "predict charges"})
	id := body["id"].(string)

	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)
	resp, dec := postJSON(t, srv.URL+"/workflow/"+id+"/approve", nil)
	if resp.StatusCode != http.StatusOK || dec["status"] != "approved" {
		t.Fatalf("approve: %d %v", resp.StatusCode, dec)
	}

	// Next stop is the schema checkpoint, with the scanned schema visible in
	// the status payload.
	status := waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)
	for status["stage"] != string(workflow.StageAwaitingSchema) {
		time.Sleep(2 * time.Millisecond)
		_, status = getStatus(t, srv.URL, id)
	}
	schema, _ := status["schema"].([]any)
	if len(schema) != 2 || schema[0] != "age" {
		t.Errorf("schema in status = %v", status["schema"])
	}

	resp, _ = postJSON(t, srv.URL+"/workflow/"+id+"/schema/approve", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schema approve: %d", resp.StatusCode)
	}

	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingFinalApproval)
	resp, dec = postJSON(t, srv.URL+"/workflow/"+id+"/feedback", map[string]any{"satisfied": true})
	if resp.StatusCode != http.StatusOK || dec["status"] != "completed" {
		t.Fatalf("feedback: %d %v", resp.StatusCode, dec)
	}
	waitForAPIStatus(t, srv.URL, id, workflow.StatusCompleted)
}

func TestSchemaCallbackEndpoint(t *testing.T) {
	srv, driver := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g"})
	id := body["id"].(string)
	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)

	resp, dec := postJSON(t, srv.URL+"/workflow/"+id+"/schema/callback", map[string]any{"columns": []string{"age", "bmi"}})
	if resp.StatusCode != http.StatusOK || dec["status"] != "success" {
		t.Fatalf("callback: %d %v", resp.StatusCode, dec)
	}

	rec, err := driver.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Source.CapturedSchema) != 2 {
		t.Errorf("captured schema = %v", rec.Source.CapturedSchema)
	}
}

func TestRejectAndAbortEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g"})
	id := body["id"].(string)
	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)

	resp, dec := postJSON(t, srv.URL+"/workflow/"+id+"/reject", nil)
	if resp.StatusCode != http.StatusOK || dec["status"] != "rejected" {
		t.Fatalf("reject: %d %v", resp.StatusCode, dec)
	}

	// The same locator comes back and parks again; rejecting burns attempts
	// until discovery exhausts and the workflow fails on its own.
	waitForAPIStatus(t, srv.URL, id, workflow.StatusFailed)
}

func TestListEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g1"})
	id := body["id"].(string)
	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)

	resp, err := http.Get(srv.URL + "/workflow")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var list []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 1 || list[0]["id"] != id || list[0]["goal"] != "g1" {
		t.Errorf("list = %v", list)
	}
}

func TestDeleteAndClearEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	_, body := postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g"})
	id := body["id"].(string)
	waitForAPIStatus(t, srv.URL, id, workflow.StatusWaitingApproval)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/workflow/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	if code, _ := getStatus(t, srv.URL, id); code != http.StatusNotFound {
		t.Errorf("status after delete: %d", code)
	}

	_, body = postJSON(t, srv.URL+"/workflow", map[string]string{"goal": "g2"})
	id2 := body["id"].(string)
	waitForAPIStatus(t, srv.URL, id2, workflow.StatusWaitingApproval)

	resp, dec := postJSON(t, srv.URL+"/workflow/clear", nil)
	if resp.StatusCode != http.StatusOK || dec["status"] != "cleared" {
		t.Fatalf("clear: %d %v", resp.StatusCode, dec)
	}
	if code, _ := getStatus(t, srv.URL, id2); code != http.StatusNotFound {
		t.Errorf("status after clear: %d", code)
	}
}
