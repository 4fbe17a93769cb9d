package certificate

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gateway-fm/certcheck/internal/kill_switch"
)

// APIServer handles HTTP requests.
type APIServer struct {
	service        *Service
	guard          *kill_switch.Guard
	onStatusChange func()
}

// NewAPIServer creates a new API server. onStatusChange, if set, is called
// after the kill switch pauses or resumes the scheduler.
func NewAPIServer(service *Service, guard *kill_switch.Guard, onStatusChange func()) *APIServer {
	if onStatusChange == nil {
		onStatusChange = func() {}
	}
	return &APIServer{service: service, guard: guard, onStatusChange: onStatusChange}
}

// RegisterHandlers registers the HTTP handlers.
func (s *APIServer) RegisterHandlers(r chi.Router) {
	r.Get("/", s.viewStatus)
	r.Get("/config", s.viewConfig)
	r.Get("/result", s.viewResult)
	r.Post("/kill", s.handleKillSwitch)
	r.Post("/restart", s.handleRestart)
}

var statusPage = template.Must(template.New("status").Parse(`
<!DOCTYPE html>
<html>
<head>
    <title>Certificate Check</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        table { border-collapse: collapse; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; vertical-align: top; }
        th { background-color: #f2f2f2; }
        .config { margin-bottom: 20px; padding: 10px; background-color: #e9ecef; border-radius: 5px; }
        .scheduler-status { margin-bottom: 20px; padding: 10px; border-radius: 5px; border: 1px solid; }
        .scheduler-active { background-color: #d4edda; border-color: #c3e6cb; color: #155724; }
        .scheduler-stopped { background-color: #f8d7da; border-color: #f5c6cb; color: #721c24; }
        .ok { background-color: #d4edda; }
        .expiring { background-color: #fff3cd; }
        .expired, .error { background-color: #f8d7da; }
    </style>
</head>
<body>
    <h1>Certificate Check</h1>
    <div class="config">
        <strong>Current Configuration:</strong><br>
        Domain: {{.Domain}}<br>
        Recipient: {{.Recipient}}<br>
        Current Time: {{.CurrentTime}}
    </div>

    <div class="scheduler-status {{if .SchedulerActive}}scheduler-active{{else}}scheduler-stopped{{end}}">
        <strong>Scheduler Status:</strong> {{if .SchedulerActive}}Active{{else}}STOPPED (Kill Switch Activated){{end}}
    </div>

    <h2>Last Check</h2>
    {{with .Last}}
    <table>
        <tr><th>Checked At</th><td>{{.CheckedAt.Format "2006-01-02 15:04:05"}}</td></tr>
        <tr class="{{.Notification}}"><th>Notification</th><td>{{.Notification}}{{if .NotifyError}} (failed: {{.NotifyError}}){{end}}</td></tr>
        {{with .Cert}}
        <tr><th>Subject</th><td>{{range $k, $v := .Subject}}{{$k}}={{$v}} {{end}}</td></tr>
        <tr><th>Issuer</th><td>{{range $k, $v := .Issuer}}{{$k}}={{$v}} {{end}}</td></tr>
        <tr><th>Valid From</th><td>{{.ValidFrom.Format "2006-01-02 15:04:05"}}</td></tr>
        <tr><th>Valid To</th><td>{{.ValidTo.Format "2006-01-02 15:04:05"}}</td></tr>
        {{end}}
        {{with .Failure}}
        <tr><th>Error Type</th><td>{{.ErrorType}}</td></tr>
        <tr><th>Error Code</th><td>{{.ErrorCode}}</td></tr>
        <tr><th>Message</th><td>{{.Msg}}</td></tr>
        {{end}}
    </table>
    {{else}}
    <p><em>No check has run yet</em></p>
    {{end}}
</body>
</html>
`))

type lastCheckView struct {
	CheckRecord
	Cert    *Certificate
	Failure *ErrorResult
}

func (s *APIServer) viewStatus(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.GetConfigValues()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get config: %v", err), http.StatusInternalServerError)
		return
	}

	schedulerActive, err := s.service.SchedulerActive()
	if err != nil {
		slog.Error("failed to get scheduler status", "err", err)
		schedulerActive = true // Default to active if error
	}

	data := struct {
		Domain          string
		Recipient       string
		CurrentTime     string
		SchedulerActive bool
		Last            *lastCheckView
	}{
		Domain:          values[ConfigCheckDomain],
		Recipient:       values[ConfigCheckToEmail],
		CurrentTime:     s.service.clock.Now().Format("2006-01-02 15:04:05"),
		SchedulerActive: schedulerActive,
	}
	if record, ok := s.service.LastCheck(); ok {
		view := &lastCheckView{CheckRecord: record}
		if c, ok := record.Result.Certificate(); ok {
			view.Cert = &c
		}
		if e, ok := record.Result.Failure(); ok {
			view.Failure = &e
		}
		data.Last = view
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusPage.Execute(w, data); err != nil {
		http.Error(w, fmt.Sprintf("failed to execute template: %v", err), http.StatusInternalServerError)
	}
}

func (s *APIServer) viewConfig(w http.ResponseWriter, r *http.Request) {
	values, err := s.service.GetConfigValues()
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to get config: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (s *APIServer) viewResult(w http.ResponseWriter, r *http.Request) {
	record, ok := s.service.LastCheck()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "no check has run yet"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleKillSwitch pauses scheduled checks once enough attempts were made.
func (s *APIServer) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	s.handleSwitch(w, r, switchAction{
		attemptType:   "kill",
		credentialKey: CredentialKillKey,
		active:        false,
		status:        "killing scheduler",
		message:       "Scheduler has been stopped",
		verb:          "kill",
	})
}

// handleRestart resumes scheduled checks once enough attempts were made.
func (s *APIServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.handleSwitch(w, r, switchAction{
		attemptType:   "restart",
		credentialKey: CredentialRestartKey,
		active:        true,
		status:        "restarting scheduler",
		message:       "Scheduler has been restarted",
		verb:          "restart",
	})
}

type switchAction struct {
	attemptType   string
	credentialKey string
	active        bool
	status        string
	message       string
	verb          string
}

func (s *APIServer) handleSwitch(w http.ResponseWriter, r *http.Request, action switchAction) {
	apiKey := r.URL.Query().Get("key")
	if apiKey == "" {
		http.Error(w, "missing API key", http.StatusUnauthorized)
		return
	}

	storedHash, err := s.service.db.GetCredential(action.credentialKey)
	if err != nil {
		slog.Error("retrieving API key", "key", action.credentialKey, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if storedHash == "" || bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(apiKey)) != nil {
		http.Error(w, "invalid API key", http.StatusUnauthorized)
		return
	}

	out, err := s.guard.Attempt(action.attemptType)
	if err != nil {
		slog.Error("kill switch attempt failed", "type", action.attemptType, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if !out.Triggered {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":             "attempt recorded",
			"attempts":           out.Attempts,
			"attempts_remaining": out.Remaining,
			"message": fmt.Sprintf("Need %d more attempts within %s to %s scheduler",
				out.Remaining, s.guard.Window(), action.verb),
		})
		return
	}

	if err := s.service.db.SetSchedulerStatus(action.active); err != nil {
		slog.Error("setting scheduler status", "err", err)
		http.Error(w, fmt.Sprintf("failed to %s scheduler", action.verb), http.StatusInternalServerError)
		return
	}
	s.onStatusChange()

	slog.Info("scheduler status changed via control API", "active", action.active)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  action.status,
		"message": action.message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "err", err)
	}
}

// HashAndStoreKey stores a bcrypt hash of a control API key.
func HashAndStoreKey(db Db, dbKey string, key string) error {
	hashedKey, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.SetCredential(dbKey, string(hashedKey))
}
