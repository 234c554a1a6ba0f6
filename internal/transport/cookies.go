package transport

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

type hop struct {
	url     *url.URL
	cookies []*http.Cookie
}

// exchangeJar serves one request with its redirects. It sends the kept
// cookies plus those set earlier in the same exchange and records what
// every hop set, so KeepCookies can commit them later.
type exchangeJar struct {
	kept    http.CookieJar
	local   *cookiejar.Jar
	deleted map[string]bool
	hops    []hop
}

func newExchangeJar(kept http.CookieJar) *exchangeJar {
	// cookiejar.New с nil опциями ошибку не возвращает
	local, _ := cookiejar.New(nil)
	return &exchangeJar{kept: kept, local: local, deleted: make(map[string]bool)}
}

func (j *exchangeJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	j.local.SetCookies(u, cookies)
	for _, ck := range cookies {
		if expired(ck) {
			j.deleted[ck.Name] = true
		} else {
			delete(j.deleted, ck.Name)
		}
	}
	j.hops = append(j.hops, hop{url: u, cookies: cookies})
}

func (j *exchangeJar) Cookies(u *url.URL) []*http.Cookie {
	got := j.local.Cookies(u)
	for _, ck := range j.kept.Cookies(u) {
		if !j.deleted[ck.Name] && !hasCookie(got, ck.Name) {
			got = append(got, ck)
		}
	}
	return got
}

func (j *exchangeJar) received() []*http.Cookie {
	var all []*http.Cookie
	for _, h := range j.hops {
		all = append(all, h.cookies...)
	}
	return all
}

func expired(ck *http.Cookie) bool {
	return ck.MaxAge < 0 || (!ck.Expires.IsZero() && ck.Expires.Before(time.Now()))
}

func hasCookie(cookies []*http.Cookie, name string) bool {
	for _, ck := range cookies {
		if ck.Name == name {
			return true
		}
	}
	return false
}
