package panel

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    classification
		message string
	}{
		{name: "status success", body: `{"status":"success"}`, want: classifySuccess},
		{name: "status ok", body: `{"status":"ok"}`, want: classifySuccess},
		{name: "bool status", body: `{"status":true}`, want: classifySuccess},
		{name: "result flag", body: `{"result":true}`, want: classifySuccess},
		{name: "auth failure", body: `{"status":"error","message":"Invalid API key"}`, want: classifyAuthFailure, message: "Invalid API key"},
		{name: "failure without key rejection", body: `{"status":"error","message":"user not found"}`, want: classifyAmbiguous, message: "user not found"},
		{name: "unknown shape", body: `{"data":{"foo":1}}`, want: classifyAmbiguous},
		{name: "bare array", body: `[1,2,3]`, want: classifyAmbiguous},
		{name: "html error page", body: `<html>Forbidden</html>`, want: classifyNotJSON},
		{name: "empty", body: ``, want: classifyNotJSON},
	}

	for _, tc := range cases {
		got, message := classify([]byte(tc.body))
		if got != tc.want {
			t.Fatalf("%s: classify = %s, want %s", tc.name, got, tc.want)
		}
		if tc.message != "" && message != tc.message {
			t.Fatalf("%s: message = %q, want %q", tc.name, message, tc.message)
		}
	}
}

func TestSuggestsAlreadyExists(t *testing.T) {
	positives := []string{"User already exists", "DUPLICATE entry", "username taken"}
	for _, message := range positives {
		if !suggestsAlreadyExists(message) {
			t.Fatalf("expected %q to suggest an existing user", message)
		}
	}
	if suggestsAlreadyExists("invalid bouquet") {
		t.Fatalf("unexpected existing-user suggestion")
	}
}

func TestBaseCandidates(t *testing.T) {
	got := baseCandidates("http://panel.example.com/admin/api.php")
	want := []string{
		"http://panel.example.com/admin/api.php",
		"http://panel.example.com/admin",
		"http://panel.example.com/api.php",
		"http://panel.example.com/reseller_api.php",
		"http://panel.example.com/panel_api.php",
		"http://panel.example.com/api",
		"http://panel.example.com",
	}
	if len(got) != len(want) {
		t.Fatalf("candidate count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBaseCandidatesDedup(t *testing.T) {
	got := baseCandidates("http://panel.example.com/api.php")
	seen := make(map[string]bool)
	for _, candidate := range got {
		if seen[candidate] {
			t.Fatalf("duplicate candidate %q", candidate)
		}
		seen[candidate] = true
	}
	if got[0] != "http://panel.example.com/api.php" {
		t.Fatalf("configured URL must be tried first, got %q", got[0])
	}
}

func TestBaseCandidatesEmpty(t *testing.T) {
	if got := baseCandidates("   "); got != nil {
		t.Fatalf("expected nil for blank input, got %v", got)
	}
}
