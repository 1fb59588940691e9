package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP определяет адрес клиента. Заголовки X-Forwarded-For и X-Real-IP
// учитываются только если соединение пришло от доверенного прокси
type ClientIP struct {
	trusted []netip.Prefix
}

// NewClientIP создает резолвер с заданными доверенными сетями
func NewClientIP(trusted []netip.Prefix) *ClientIP {
	return &ClientIP{trusted: trusted}
}

// Address возвращает адрес клиента. X-Forwarded-For читается справа налево:
// первый недоверенный адрес и есть клиент
func (c *ClientIP) Address(r *http.Request) string {
	peer := remoteHost(r)
	if !c.isTrusted(peer) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				// мусор в цепочке: дальше доверять нельзя
				return client
			}
			client = hop
			if !c.isTrusted(hop) {
				return hop
			}
		}
		return client
	}

	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		if _, err := netip.ParseAddr(ip); err == nil {
			return ip
		}
	}
	return peer
}

func (c *ClientIP) isTrusted(ip string) bool {
	if c == nil || len(c.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
