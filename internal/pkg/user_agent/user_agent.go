package user_agent

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device types reported by Classify.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Unknown is reported when no browser or OS rule matches.
const Unknown = "Unknown"

//go:embed rules/agents.yml
var defaultRulesFile []byte

// Rule is one entry of an ordered classification list.
type Rule struct {
	Name    string `yaml:"name"`
	Regex   string `yaml:"regex"`
	Version string `yaml:"version"`
}

// RuleSet holds the three ordered rule groups. First match wins within a group.
type RuleSet struct {
	Devices          []Rule `yaml:"devices"`
	Browsers         []Rule `yaml:"browsers"`
	OperatingSystems []Rule `yaml:"operating_systems"`

	cache *regexCache
}

// Classification is the result of running a user agent through a RuleSet.
type Classification struct {
	DeviceType     string
	BrowserName    string
	BrowserVersion string
	OSName         string
	OSVersion      string
	IsMobile       bool
}

// Compiled regex cache
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// LoadRules parses a YAML rule document and compiles every pattern up front.
func LoadRules(data []byte) (*RuleSet, error) {
	rs := &RuleSet{cache: newRegexCache()}
	if err := yaml.Unmarshal(data, rs); err != nil {
		return nil, fmt.Errorf("user_agent: parse rules: %w", err)
	}

	groups := map[string][]Rule{
		"devices":           rs.Devices,
		"browsers":          rs.Browsers,
		"operating_systems": rs.OperatingSystems,
	}
	for group, rules := range groups {
		for i, rule := range rules {
			if rule.Name == "" || rule.Regex == "" {
				return nil, fmt.Errorf("user_agent: %s rule %d needs a name and a regex", group, i)
			}
			if _, err := rs.cache.get(rule.Regex); err != nil {
				return nil, fmt.Errorf("user_agent: %s rule %q: %w", group, rule.Name, err)
			}
		}
	}
	return rs, nil
}

var (
	defaultRules *RuleSet
	once         sync.Once
)

// Default returns the embedded rule set.
func Default() *RuleSet {
	once.Do(func() {
		rs, err := LoadRules(defaultRulesFile)
		if err != nil {
			panic(err)
		}
		defaultRules = rs
	})
	return defaultRules
}

// Classify runs userAgent through the embedded rule set.
func Classify(userAgent string) Classification {
	return Default().Classify(userAgent)
}

// Match returns the first rule in group matching userAgent together with its expanded version.
func (rs *RuleSet) Match(group []Rule, userAgent string) (Rule, string, bool) {
	for _, rule := range group {
		regex, err := rs.cache.get(rule.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}
		return rule, expandVersion(rule.Version, matches), true
	}
	return Rule{}, "", false
}

// Classify derives device, browser and OS from userAgent.
// An empty or unrecognised agent classifies as an unknown desktop browser.
func (rs *RuleSet) Classify(userAgent string) Classification {
	result := Classification{
		DeviceType:  DeviceDesktop,
		BrowserName: Unknown,
		OSName:      Unknown,
	}
	if strings.TrimSpace(userAgent) == "" {
		return result
	}

	if rule, _, ok := rs.Match(rs.Devices, userAgent); ok {
		result.DeviceType = rule.Name
	}
	result.IsMobile = result.DeviceType == DeviceMobile || result.DeviceType == DeviceTablet

	if rule, version, ok := rs.Match(rs.Browsers, userAgent); ok {
		result.BrowserName = rule.Name
		result.BrowserVersion = version
	}
	if rule, version, ok := rs.Match(rs.OperatingSystems, userAgent); ok {
		result.OSName = rule.Name
		result.OSVersion = version
	}

	return result
}

// expandVersion replaces $1, $2, ... with capture groups. Underscored versions
// such as iOS "14_6" are normalised to dots.
func expandVersion(template string, matches []string) string {
	if template == "" || len(matches) < 2 {
		return ""
	}
	version := template
	for i := len(matches) - 1; i >= 1; i-- {
		version = strings.ReplaceAll(version, fmt.Sprintf("$%d", i), matches[i])
	}
	return strings.ReplaceAll(version, "_", ".")
}
