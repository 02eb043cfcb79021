/*
Copyright © contributors to CloudNativePG, established as
CloudNativePG a Series of LF Projects, LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

/*
Package configparser contains the code to read a configuration structure
from a map of values and from the environment.

The configuration structure fields are annotated with the `env` tag:

	type Data struct {
		ClusterName string        `json:"clusterName" env:"EKS_NODE_ROLLOUT_CLUSTER_NAME"`
		DryRun      bool          `json:"dryRun" env:"EKS_NODE_ROLLOUT_DRY_RUN"`
		Timeout     time.Duration `json:"timeout" env:"EKS_NODE_ROLLOUT_TIMEOUT"`
	}

Values in the map take precedence over the environment. Empty or
malformed values are replaced by the corresponding field of the
defaults structure.
*/
package configparser

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"
)

var durationType = reflect.TypeOf(time.Duration(0))

// ReadConfigMap reads the configuration from the environment and the passed in data map.
// Config and defaults are supposed to be pointers to structs of the same type
func ReadConfigMap(target any, defaults any, data map[string]string) {
	ReadConfigMapWithEnvironment(target, defaults, data, OsEnvironment{})
}

// ReadConfigMapWithEnvironment is like ReadConfigMap, but the environment
// is read from the passed source
func ReadConfigMapWithEnvironment(
	target any,
	defaults any,
	data map[string]string,
	env EnvironmentSource,
) {
	ensurePointerToCompatibleStruct("target", target, "default", defaults)

	count := reflect.TypeOf(defaults).Elem().NumField()
	for i := 0; i < count; i++ {
		field := reflect.TypeOf(defaults).Elem().Field(i)
		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		// Initialize value with default
		var value string
		var ok bool
		if value, ok = data[envName]; !ok {
			value = env.Getenv(envName)
		}
		value = strings.TrimSpace(value)

		defaultField := reflect.ValueOf(defaults).Elem().FieldByName(field.Name)
		targetField := reflect.ValueOf(target).Elem().FieldByName(field.Name)
		if value == "" {
			targetField.Set(defaultField)
			continue
		}

		if err := setField(targetField, value); err != nil {
			log.Info("Skipping invalid configuration value, using the default one",
				"name", envName, "value", value, "err", err.Error())
			targetField.Set(defaultField)
		}
	}
}

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(duration))
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Int, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.String:
		field.SetString(value)
	case reflect.Slice:
		field.Set(reflect.ValueOf(splitAndTrim(value)))
	default:
		log.Warning("Skipping unsupported configuration field kind", "kind", field.Kind().String())
	}

	return nil
}

// ensurePointerToCompatibleStruct panics if "target" is not a pointer to a struct,
// or "defaults" is not a pointer to a struct of the same type
func ensurePointerToCompatibleStruct(
	targetName string, target any,
	defaultsName string, defaults any,
) {
	targetType := reflect.TypeOf(target)
	if targetType.Kind() != reflect.Ptr || targetType.Elem().Kind() != reflect.Struct {
		panic(targetName + " must be a pointer to a struct")
	}

	defaultsType := reflect.TypeOf(defaults)
	if defaultsType != targetType {
		panic(defaultsName + " must be a pointer to a struct of the same type of " + targetName)
	}
}

// splitAndTrim slices a string into all substrings after each comma and
// returns a slice of those space-trimmed substrings.
func splitAndTrim(commaSeparatedList string) []string {
	list := strings.Split(commaSeparatedList, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}
