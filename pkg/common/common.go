package common

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	ENABLED  = "enabled"
	DISABLED = "disabled"
)

var (
	snowflakeNode *snowflake.Node
	snowflakeOnce sync.Once
)

// UUIDint64 returns a cluster-unique int64 identifier.
func UUIDint64() int64 {
	snowflakeOnce.Do(func() {
		var err error
		snowflakeNode, err = snowflake.NewNode(rand.Int63n(1024))
		if err != nil {
			panic(err)
		}
	})
	return snowflakeNode.Generate().Int64()
}

// GenerateOrderNumber returns a human-readable unique order number,
// distinct from the internal numeric id. The store's unique index on
// order_number is the final arbiter of uniqueness.
func GenerateOrderNumber() string {
	id := UUIDint64()
	return "ORD-" + strings.ToUpper(strconv.FormatInt(id, 36))
}

// FormatAmount renders minor currency units as a decimal string,
// e.g. 1999 -> "19.99".
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a name, folds accented characters to ASCII and
// collapses everything else into single hyphens.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	s := slugStrip.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(s, "-")
}
