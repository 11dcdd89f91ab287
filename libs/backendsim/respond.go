package backendsim

import (
	"context"
	"encoding/json"
	"net/http"
)

type userKey struct{}

func contextWithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userKey{}).(string)
	return v
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody(msg))
}
