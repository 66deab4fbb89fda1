package editor

import (
	"fmt"
	"net/http"

	"github.com/leapstack-labs/vectorflow/internal/ui/workspace"
)

// SessionName is the cookie that remembers a browser's workspace.
const SessionName = "vectorflow"

const workspaceKey = "workspace"

// workspaceName resolves the workspace for a request. A ?workspace= query
// parameter switches the browser to that workspace and is remembered in
// the session cookie; otherwise the remembered workspace is used.
func (h *Handlers) workspaceName(w http.ResponseWriter, r *http.Request) (string, error) {
	// A cookie that no longer decodes (rotated secret) yields a fresh session.
	sess, _ := h.sessionStore.Get(r, SessionName)

	name, _ := sess.Values[workspaceKey].(string)
	if q := r.URL.Query().Get("workspace"); q != "" && q != name {
		if !workspace.ValidName(q) {
			return "", fmt.Errorf("%w: %q", workspace.ErrInvalidName, q)
		}
		sess.Values[workspaceKey] = q
		if err := sess.Save(r, w); err != nil {
			h.logger.Warn("failed to save session", "error", err)
		}
		name = q
	}
	if name == "" {
		name = workspace.Default
	}
	return name, nil
}
