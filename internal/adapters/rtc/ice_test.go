package rtc

import (
	"testing"

	"github.com/dkeye/realm/internal/config"
)

func TestICEServersDefault(t *testing.T) {
	got, err := ICEServers(nil)
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if len(got) != 1 || got[0].URLs[0] != defaultSTUN {
		t.Fatalf("unexpected default %+v", got)
	}
}

func TestICEServersValidates(t *testing.T) {
	got, err := ICEServers([]config.ICEServer{
		{URLs: []string{"stun:stun.example.org:3478"}},
		{URLs: []string{"turn:turn.example.org:3478?transport=udp"}, Username: "u", Credential: "p"},
	})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if len(got) != 2 || got[1].Username != "u" {
		t.Fatalf("unexpected servers %+v", got)
	}

	if _, err := ICEServers([]config.ICEServer{{URLs: []string{"http://nope"}}}); err == nil {
		t.Fatalf("bad scheme accepted")
	}
	if _, err := ICEServers([]config.ICEServer{{URLs: []string{"turn:turn.example.org"}}}); err == nil {
		t.Fatalf("turn without credentials accepted")
	}
	if _, err := ICEServers([]config.ICEServer{{}}); err == nil {
		t.Fatalf("server without urls accepted")
	}
}
