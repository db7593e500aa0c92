package config

import (
	"fmt"
	"strings"
)

const DefaultIceServer = "stun:stun.l.google.com:19302"

type Webrtc struct {
	DisableDefaultInterceptors bool
	IceServers                 []IceServer
	IcePorts                   struct {
		Min uint16
		Max uint16
	}
	IceIpMap string
	LogLevel int
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

func (w *Webrtc) HasPortRange() bool { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasIceIpMap() bool  { return w.IceIpMap != "" }

// Servers returns the list of ICE servers or the default STUN server
// when nothing is set.
func (w *Webrtc) Servers() []IceServer {
	if len(w.IceServers) == 0 {
		return []IceServer{{Urls: DefaultIceServer}}
	}
	return w.IceServers
}

// Replacement substitutes {From} placeholders in ICE server URLs.
type Replacement struct {
	From string
	To   string
}

// ServersFor returns ICE servers with all the placeholders replaced,
// e.g. stun:{server-ip}:3478.
func (w *Webrtc) ServersFor(replacements ...Replacement) []IceServer {
	servers := w.Servers()
	if len(replacements) == 0 {
		return servers
	}
	out := make([]IceServer, len(servers))
	for i, ice := range servers {
		for _, r := range replacements {
			ice.Urls = strings.ReplaceAll(ice.Urls, "{"+r.From+"}", r.To)
		}
		out[i] = ice
	}
	return out
}

func (w *Webrtc) validate() error {
	if w.HasPortRange() && w.IcePorts.Min > w.IcePorts.Max {
		return fmt.Errorf("bad ICE port range %v-%v", w.IcePorts.Min, w.IcePorts.Max)
	}
	for _, ice := range w.IceServers {
		if ice.Urls == "" {
			return fmt.Errorf("ICE server without urls: %+v", ice)
		}
		if strings.HasPrefix(ice.Urls, "turn:") || strings.HasPrefix(ice.Urls, "turns:") {
			if ice.Username == "" || ice.Credential == "" {
				return fmt.Errorf("TURN or TURNS servers should have both username and credential: %v", ice.Urls)
			}
		}
	}
	return nil
}
