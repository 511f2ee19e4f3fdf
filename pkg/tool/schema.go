// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/humanizer-ai/aui/pkg/auierr"
)

// SchemaFor generates a JSON schema for a typed tool options struct.
// Exposed to clients that want machine-readable tool declarations.
func SchemaFor(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	return reflector.Reflect(v)
}

// DecodeArgs decodes a raw argument map into a typed options struct.
// Unknown keys are rejected so typos surface as InvalidArgs instead of
// silently ignored options.
func DecodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		TagName:     "json",
		ErrorUnused: true,
	})
	if err != nil {
		return auierr.Wrap(auierr.Internal, err, "failed to build argument decoder")
	}
	if err := decoder.Decode(args); err != nil {
		return auierr.Wrap(auierr.InvalidArgs, err, "invalid tool arguments")
	}
	return nil
}
