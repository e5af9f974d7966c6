// Package providers registers every built-in AI provider via side effects.
package providers

import (
	_ "github.com/portalkids/portal-api/src/ai/anthropic"
	_ "github.com/portalkids/portal-api/src/ai/openai"
)
