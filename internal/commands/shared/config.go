// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"os"

	"github.com/tombee/antkeeper/internal/config"
)

// DefaultConfigFile is the config file commands look for in the working
// directory when --config is not given.
const DefaultConfigFile = "antkeeper.yaml"

// LoadConfig loads the antkeeper configuration honoring the --config flag.
// Without the flag, antkeeper.yaml in the working directory is used when
// present; otherwise defaults and environment variables apply.
func LoadConfig() (*config.Config, error) {
	path := GetConfigPath()
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	return config.Load(path)
}
