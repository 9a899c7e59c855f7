package engineio

import (
	"net/http"
	"strings"

	jsoniter "github.com/json-iterator/go"
	eios "github.com/socketio/socket.io-sub001/engineio/session"
	eiot "github.com/socketio/socket.io-sub001/engineio/transport"
)

type SessionID = eios.ID

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func eioVersionFrom(r *http.Request) string    { return r.URL.Query().Get("EIO") }
func sessionIDFrom(r *http.Request) SessionID  { return SessionID(r.URL.Query().Get("sid")) }
func transportNameFrom(r *http.Request) string { return r.URL.Query().Get("transport") }

func isWebsocketRequest(r *http.Request) bool {
	return headerContains(r.Header, "Connection", "upgrade") && headerContains(r.Header, "Upgrade", "websocket")
}

func headerContains(h http.Header, key, token string) bool {
	for _, v := range h.Values(key) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

func protocolFrom(v string) (int, bool) {
	switch v {
	case "3":
		return 3, true
	case "4":
		return 4, true
	}
	return 0, false
}

func upgradesFor(name eiot.Name, allowed []eiot.Name) []string {
	upgrades := []string{}
	for _, upgrade := range name.Upgrades() {
		for _, a := range allowed {
			if a.String() == upgrade {
				upgrades = append(upgrades, upgrade)
			}
		}
	}
	return upgrades
}
