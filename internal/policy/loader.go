package policy

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadRules reads the rule table from a YAML file of the form:
//
//	rules:
//	  - resource: orders/:id
//	    actions: [read, write]
//	    roles: [retailer, location_user]
func LoadRules(path string) ([]Rule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}
	var rules []Rule
	if err := v.UnmarshalKey("rules", &rules); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConfiguration, path, err)
	}
	return rules, nil
}
