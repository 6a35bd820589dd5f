// internal/handlers/presence.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/vicr123/entertaining-server/internal/play"
)

type onlineStateReply struct {
	Online                 bool   `json:"online"`
	Application            string `json:"application,omitempty"`
	ApplicationDisplayName string `json:"applicationDisplayName,omitempty"`
}

// PresenceHandler answers GET /presence/{userID} with the user's online state.
func PresenceHandler(gw *play.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid user id", http.StatusBadRequest)
			return
		}

		reply := onlineStateReply{}
		if state, ok := gw.OnlineState(userID); ok {
			reply = onlineStateReply{
				Online:                 true,
				Application:            state.Application,
				ApplicationDisplayName: state.ApplicationDisplayName,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reply); err != nil {
			http.Error(w, "failed to encode reply", http.StatusInternalServerError)
		}
	}
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
