package clientconfig

import (
	"fmt"
	"sort"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// keyAliases maps alternative spellings (after snake_case normalization) to
// the canonical option key.
var keyAliases = map[string]string{
	"url_extension_rest_api": "rest_api_url_extension",
	"rest_api_url":           "rest_api_url_extension",
	"handleowner":            "hs_admin_handleowner",
	"handle_owner":           "hs_admin_handleowner",
	"http_s_verify":          "https_verify",
	"baseuri":                "handle_server_url",
	"base_uri":               "handle_server_url",
}

// NormalizeKey maps a configuration key in any of the accepted spellings
// ("REST_API_url_extension", "url_extension_REST_API",
// "restApiUrlExtension", ...) to its canonical snake_case form.
func NormalizeKey(key string) string {
	k := strcase.ToSnake(key)
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}

// LayerFromMap decodes a loosely typed option map, as returned by a
// credentials provider, into a Layer. Values are converted weakly, so
// "false" and "100" are accepted for booleans and integers. Keys that do
// not name an option are returned as unused.
func LayerFromMap(m map[string]interface{}) (Layer, []string, error) {
	var layer Layer
	if len(m) == 0 {
		return layer, nil, nil
	}

	normalized := make(map[string]interface{}, len(m))
	for k, v := range m {
		nk := NormalizeKey(k)
		if _, dup := normalized[nk]; dup {
			return Layer{}, nil, fmt.Errorf("option %q given more than once", nk)
		}
		normalized[nk] = v
	}

	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &layer,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return Layer{}, nil, fmt.Errorf("error creating config decoder: %w", err)
	}
	if err := decoder.Decode(normalized); err != nil {
		return Layer{}, nil, fmt.Errorf("error decoding client options: %w", err)
	}

	sort.Strings(md.Unused)
	return layer, md.Unused, nil
}
