package build

import (
	"fmt"
	"regexp"

	"github.com/conneroisu/markupc/internal/configtree"
	"github.com/conneroisu/markupc/internal/errors"
	"github.com/conneroisu/markupc/internal/jsvalue"
	"github.com/conneroisu/markupc/internal/regexpconv"
)

// Plugin keys kept on the shared plugin object. Every other key is local to
// the plugin and only visible to its parser as the constant "config".
var globalPluginKeys = map[string]bool{
	"parser":      true,
	"quickMatch":  true,
	"regexp":      true,
	"regexpLimit": true,
}

// registeredVars entries that never leave the server.
var privateRegisteredVars = []string{"cacheDir"}

// pluginsSource encodes the plugins section. Plugins without a parser are
// left out.
func (s *state) pluginsSource(plugins *jsvalue.Dictionary) (string, error) {
	out := jsvalue.NewDictionary()

	for _, name := range plugins.Keys() {
		v, _ := plugins.Get(name)
		config := asMap(v)
		if config == nil {
			continue
		}
		parser, ok := config["parser"]
		if !ok || parser == nil {
			continue
		}

		global := make(map[string]any)
		local := make(map[string]any)
		for k, v := range config {
			switch {
			case k == "className":
			case globalPluginKeys[k]:
				global[k] = v
			default:
				local[k] = v
			}
		}

		if qm, ok := global["quickMatch"]; ok {
			str, isString := qm.(string)
			if match, found := regexpconv.QuickMatch(str); isString && found {
				global["quickMatch"] = match
			} else {
				s.logger.Debug(s.ctx, "dropping quickMatch", "plugin", name)
				delete(global, "quickMatch")
			}
		}

		if re, ok := global["regexp"]; ok {
			code, err := s.pluginRegexp(re)
			if err != nil {
				return "", errors.PrefixPath(errors.PrefixPath(errors.PrefixPath(err, "regexp"), name), configtree.SectionPlugins)
			}
			global["regexp"] = code
		}

		localJS, err := s.enc.Encode(local)
		if err != nil {
			return "", errors.PrefixPath(errors.PrefixPath(err, name), configtree.SectionPlugins)
		}
		body, err := parserBody(parser)
		if err != nil {
			return "", errors.PrefixPath(errors.PrefixPath(errors.PrefixPath(err, "parser"), name), configtree.SectionPlugins)
		}
		global["parser"] = jsvalue.Code("/**\n" +
			"* @param {!string} text\n" +
			"* @param {!Array.<Array>} matches\n" +
			"*/\n" +
			"function(text, matches)\n" +
			"{\n" +
			"\t/** @const */\n" +
			"\tvar config=" + localJS + ";\n" +
			"\t" + body + "\n" +
			"}")

		out.Set(name, global)
	}

	return s.enc.Encode(out)
}

func (s *state) pluginRegexp(v any) (jsvalue.Code, error) {
	switch re := v.(type) {
	case jsvalue.Code:
		return re, nil
	case string:
		js, err := s.conv.ToJS(re, true)
		if err != nil {
			return "", errors.NewEncodingError("", err.Error())
		}
		return jsvalue.Code(js), nil
	case *jsvalue.Regexp:
		js, err := s.conv.ToJS(re.Pattern, true)
		if err != nil {
			return "", errors.NewEncodingError("", err.Error())
		}
		return jsvalue.Code(js), nil
	}
	return "", errors.NewEncodingError("", fmt.Sprintf("unsupported regexp value of type %T", v))
}

// registeredVarsSource encodes registeredVars without its private entries.
func (s *state) registeredVarsSource(vars *jsvalue.Dictionary) (string, error) {
	out := vars.Clone()
	for _, name := range privateRegisteredVars {
		out.Delete(name)
	}
	js, err := s.enc.Encode(out)
	if err != nil {
		return "", errors.PrefixPath(err, configtree.SectionRegisteredVars)
	}
	return js, nil
}

func (s *state) rootContextSource(root any) (string, error) {
	js, err := s.enc.Encode(root)
	if err != nil {
		return "", errors.PrefixPath(err, configtree.SectionRootContext)
	}
	return js, nil
}

// tagsSource optimizes then encodes the tags section. Tag configs stay
// independent objects when an exported method can modify them at runtime.
func (s *state) tagsSource(tags *jsvalue.Dictionary) (string, error) {
	optimize := s.opt.OptimizeObject
	if containsAny(s.exports, tagMutators...) {
		optimize = s.opt.OptimizeObjectContent
	}

	out := jsvalue.NewDictionary()
	for _, name := range tags.Keys() {
		v, _ := tags.Get(name)
		if config := asMap(v); config != nil {
			if attrs, ok := config["attributes"].(map[string]any); ok {
				config["attributes"] = jsvalue.DictionaryFrom(attrs)
			}
			v = config
		}

		optimized, err := optimize(v)
		if err != nil {
			return "", errors.PrefixPath(errors.PrefixPath(err, name), configtree.SectionTags)
		}
		out.Set(name, optimized)
	}

	js, err := s.enc.Encode(out)
	if err != nil {
		return "", errors.PrefixPath(err, configtree.SectionTags)
	}
	return js, nil
}

func asMap(v any) map[string]any {
	switch c := v.(type) {
	case map[string]any:
		return c
	case *jsvalue.Dictionary:
		m := make(map[string]any, c.Len())
		c.Range(func(k string, v any) bool {
			m[k] = v
			return true
		})
		return m
	}
	return nil
}

// anonymousFunction matches a body that opens with a function expression,
// which is a syntax error as the first statement of the generated parser.
var anonymousFunction = regexp.MustCompile(`^\s*function\s*\(`)

// parserBody returns the source of a replaced parser callback.
func parserBody(v any) (string, error) {
	var body string
	switch c := v.(type) {
	case jsvalue.Code:
		body = string(c)
	case string:
		body = c
	default:
		return "", errors.NewEncodingError("", fmt.Sprintf("unsupported parser value of type %T", v))
	}
	if anonymousFunction.MatchString(body) {
		return "", errors.NewEncodingError("", "parser must be a function body with text and matches in scope, not a function expression")
	}
	return body, nil
}
