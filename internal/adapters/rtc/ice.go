// Package rtc builds the ICE configuration clients use to set up their
// peer connections. The gateway itself never opens one.
package rtc

import (
	"fmt"

	"github.com/dkeye/realm/internal/config"
	"github.com/pion/stun/v3"
	"github.com/pion/webrtc/v4"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{defaultSTUN},
			},
		},
	}
}

// ICEServers converts configured servers, rejecting malformed URLs and
// TURN entries without credentials. An empty list yields the default.
func ICEServers(servers []config.ICEServer) ([]webrtc.ICEServer, error) {
	if len(servers) == 0 {
		return DefaultWebRTCConfig().ICEServers, nil
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for i, s := range servers {
		if len(s.URLs) == 0 {
			return nil, fmt.Errorf("ice server %d: no urls", i)
		}
		for _, raw := range s.URLs {
			u, err := stun.ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("ice server %d: %q: %w", i, raw, err)
			}
			if (u.Scheme == stun.SchemeTypeTURN || u.Scheme == stun.SchemeTypeTURNS) && (s.Username == "" || s.Credential == "") {
				return nil, fmt.Errorf("ice server %d: %q needs username and credential", i, raw)
			}
		}
		out = append(out, webrtc.ICEServer{
			URLs:           s.URLs,
			Username:       s.Username,
			Credential:     s.Credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return out, nil
}
