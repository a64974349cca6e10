package oracle

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/postings-conformance/internal/postings"
)

// pattern records the access path of one run so a mismatch can be traced
// back to it.
type pattern struct {
	options     Options
	req         postings.Request
	live        bool
	reuse       string
	stopAt      int
	docFreq     int
	skipChance  float64
	allSkipping bool
	step        string
}

func (p pattern) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flavor=%s req=%s live=%t", p.req.Flavor(), p.req, p.live)
	if p.reuse != "" {
		fmt.Fprintf(&b, " enum=%s", p.reuse)
	}
	fmt.Fprintf(&b, " stopAt=%d/%d", p.stopAt, p.docFreq)
	if p.options.Has(Skipping) {
		fmt.Fprintf(&b, " skipChance=%.2f allSkip=%t", p.skipChance, p.allSkipping)
	}
	fmt.Fprintf(&b, " options=%s", p.options)
	if p.step != "" {
		fmt.Fprintf(&b, " step=%q", p.step)
	}
	return b.String()
}
