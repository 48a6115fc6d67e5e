package dnsproxy

import (
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"
)

// answerCache keeps upstream answers until their TTL expires.
type answerCache struct {
	items  *cache.Cache
	maxTTL time.Duration
	now    func() time.Time
}

type cachedAnswer struct {
	msg    *dns.Msg
	stored time.Time
}

func newAnswerCache(maxTTL time.Duration) *answerCache {
	return &answerCache{
		items:  cache.New(maxTTL, cacheCleanupInterval),
		maxTTL: maxTTL,
		now:    time.Now,
	}
}

func cacheKey(req *dns.Msg) (string, bool) {
	if len(req.Question) != 1 {
		return "", false
	}
	q := req.Question[0]
	do := "0"
	if opt := req.IsEdns0(); opt != nil && opt.Do() {
		do = "1"
	}
	return strings.ToLower(q.Name) + "|" + strconv.Itoa(int(q.Qtype)) + "|" + strconv.Itoa(int(q.Qclass)) + "|" + do, true
}

// get returns a copy of the cached answer for req with the request id and
// TTLs decreased by the time spent in the cache.
func (c *answerCache) get(req *dns.Msg) *dns.Msg {
	key, ok := cacheKey(req)
	if !ok {
		return nil
	}
	v, found := c.items.Get(key)
	if !found {
		return nil
	}
	entry := v.(cachedAnswer)

	elapsed := uint32(c.now().Sub(entry.stored) / time.Second)
	resp := entry.msg.Copy()
	resp.Id = req.Id
	for _, section := range [][]dns.RR{resp.Answer, resp.Ns, resp.Extra} {
		for _, rr := range section {
			if rr.Header().Rrtype == dns.TypeOPT {
				continue
			}
			if rr.Header().Ttl > elapsed {
				rr.Header().Ttl -= elapsed
			} else {
				rr.Header().Ttl = 0
			}
		}
	}
	return resp
}

// put caches a successful or NXDOMAIN answer for its smallest TTL, capped at
// maxTTL. Truncated answers and answers without records are not cached.
func (c *answerCache) put(req, resp *dns.Msg) {
	key, ok := cacheKey(req)
	if !ok || resp.Truncated {
		return
	}
	if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
		return
	}

	ttl, ok := minTTL(resp)
	if !ok || ttl == 0 {
		return
	}
	d := time.Duration(ttl) * time.Second
	if d > c.maxTTL {
		d = c.maxTTL
	}
	c.items.Set(key, cachedAnswer{msg: resp.Copy(), stored: c.now()}, d)
}

func (c *answerCache) len() int {
	return c.items.ItemCount()
}

func (c *answerCache) flush() {
	c.items.Flush()
}

func minTTL(msg *dns.Msg) (uint32, bool) {
	var ttl uint32
	found := false
	for _, section := range [][]dns.RR{msg.Answer, msg.Ns} {
		for _, rr := range section {
			if !found || rr.Header().Ttl < ttl {
				ttl = rr.Header().Ttl
				found = true
			}
		}
	}
	return ttl, found
}
