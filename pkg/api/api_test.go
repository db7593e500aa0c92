package api

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []string
	}{
		{
			name: "new session",
			msg:  NewSessionRequest("https://example.com/a.mp4", true),
			want: []string{`"type":"newSession"`, `"videoUrl":"https://example.com/a.mp4"`, `"wantVideo":true`},
		},
		{
			name: "end session",
			msg:  EndSessionRequest(),
			want: []string{`{"type":"endSession"}`},
		},
		{
			name: "type is stamped",
			msg:  NewSession{VideoUrl: "x"},
			want: []string{`"type":"newSession"`},
		},
		{
			name: "session ended without id",
			msg:  NewSessionEnded("", "EOF"),
			want: []string{`"type":"sessionEnded"`, `"reason":"EOF"`},
		},
		{
			name: "sdp",
			msg:  NewSdpMessage(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}),
			want: []string{`"type":"newSdp"`, `"sdp":{"type":"answer","sdp":"v=0"}`},
		},
		{
			name: "candidate",
			msg:  NewIceCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 127.0.0.1 5000 typ host"}),
			want: []string{`"type":"iceCandidate"`, `"candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 5000 typ host"`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(string(b), w) {
					t.Errorf("%s doesn't contain %s", b, w)
				}
			}
		})
	}
}

func TestEncodeNoSessionId(t *testing.T) {
	b, err := Encode(NewSessionEnded("", "EOF"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "sessionId") {
		t.Errorf("empty id should be omitted, got %s", b)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, ErrMalformed) {
		t.Errorf("nil message: %v", err)
	}
	if _, err := Encode(Envelope{T: KindNewSession}); !errors.Is(err, ErrMalformed) {
		t.Errorf("bare envelope: %v", err)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind Kind
		test func(t *testing.T, m Message)
	}{
		{
			name: "new session",
			data: `{"type":"newSession","videoUrl":"v.mp4","wantVideo":false}`,
			kind: KindNewSession,
			test: func(t *testing.T, m Message) {
				if v := m.(NewSession); v.VideoUrl != "v.mp4" || v.WantVideo {
					t.Errorf("wrong message %+v", v)
				}
			},
		},
		{
			name: "session connected",
			data: `{"type":"sessionConnected","sessionId":"s1"}`,
			kind: KindSessionConnected,
			test: func(t *testing.T, m Message) {
				if v := m.(SessionConnected); v.SessionId != "s1" {
					t.Errorf("wrong id %v", v.SessionId)
				}
			},
		},
		{
			name: "end session",
			data: `{"type":"endSession"}`,
			kind: KindEndSession,
		},
		{
			name: "session ended",
			data: `{"type":"sessionEnded","sessionId":"s1","reason":"EOF"}`,
			kind: KindSessionEnded,
			test: func(t *testing.T, m Message) {
				if v := m.(SessionEnded); v.SessionId != "s1" || v.Reason != "EOF" {
					t.Errorf("wrong message %+v", v)
				}
			},
		},
		{
			name: "session ended without id",
			data: `{"type":"sessionEnded","reason":"Server restart"}`,
			kind: KindSessionEnded,
			test: func(t *testing.T, m Message) {
				if v := m.(SessionEnded); v.SessionId != "" {
					t.Errorf("unexpected id %v", v.SessionId)
				}
			},
		},
		{
			name: "offer",
			data: `{"type":"newSdp","sdp":{"type":"offer","sdp":"v=0"}}`,
			kind: KindNewSdp,
			test: func(t *testing.T, m Message) {
				if v := m.(NewSdp); v.Sdp.Type != webrtc.SDPTypeOffer || v.Sdp.SDP != "v=0" {
					t.Errorf("wrong sdp %+v", v.Sdp)
				}
			},
		},
		{
			name: "candidate",
			data: `{"type":"iceCandidate","candidate":{"candidate":"c1","sdpMid":"0","sdpMLineIndex":0}}`,
			kind: KindIceCandidate,
			test: func(t *testing.T, m Message) {
				v := m.(IceCandidate)
				if v.Candidate.Candidate != "c1" || v.Candidate.SDPMid == nil || *v.Candidate.SDPMid != "0" {
					t.Errorf("wrong candidate %+v", v.Candidate)
				}
			},
		},
		{
			name: "end of candidates",
			data: `{"type":"iceCandidate","candidate":{"candidate":"","sdpMid":"0"}}`,
			kind: KindIceCandidate,
			test: func(t *testing.T, m Message) {
				if v := m.(IceCandidate); v.Candidate.Candidate != "" {
					t.Errorf("wrong candidate %+v", v.Candidate)
				}
			},
		},
		{
			name: "extra fields",
			data: `{"type":"sessionConnected","sessionId":"s2","foo":42}`,
			kind: KindSessionConnected,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.data))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if m.Kind() != tt.kind {
				t.Fatalf("kind %v, want %v", m.Kind(), tt.kind)
			}
			if tt.test != nil {
				tt.test(t, m)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: `hello`},
		{name: "empty", data: ``},
		{name: "array", data: `[1,2]`},
		{name: "no type", data: `{"sessionId":"s1"}`},
		{name: "unknown type", data: `{"type":"resumeSession"}`},
		{name: "type not a string", data: `{"type":42}`},
		{name: "no video url", data: `{"type":"newSession","wantVideo":true}`},
		{name: "no session id", data: `{"type":"sessionConnected"}`},
		{name: "wrong field type", data: `{"type":"sessionEnded","reason":5}`},
		{name: "no sdp type", data: `{"type":"newSdp","sdp":{"sdp":"v=0"}}`},
		{name: "bad sdp type", data: `{"type":"newSdp","sdp":{"type":"bogus","sdp":"v=0"}}`},
		{name: "candidate not an object", data: `{"type":"iceCandidate","candidate":"c1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Decode([]byte(tt.data))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected malformed error, got %v (%v)", err, m)
			}
		})
	}
}

func TestRoundTripKeepsSdp(t *testing.T) {
	sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\no=- 1 1 IN IP4 0.0.0.0\r\n"}
	b, err := Encode(NewSdpMessage(sdp))
	if err != nil {
		t.Fatal(err)
	}
	m, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.(NewSdp).Sdp; got.Type != sdp.Type || got.SDP != sdp.SDP {
		t.Errorf("got %+v, want %+v", got, sdp)
	}
}

func TestBinaryFrameIsMalformed(t *testing.T) {
	if !errors.Is(ErrBinaryFrame, ErrMalformed) {
		t.Error("binary frame error should be malformed")
	}
}
