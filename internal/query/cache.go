// Copyright 2025 Tagstore Authors
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

package query

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultCacheSize = 128

// Compiler memoizes compilation keyed by parameter hash. Parameter identity
// deliberately has no random discriminator, so two bundles built
// independently from the same filters hit the same cache slot.
type Compiler struct {
	cache *lru.Cache[string, *Compiled]
}

// NewCompiler returns a compiler with an LRU of the given size; size <= 0
// selects the default.
func NewCompiler(size int) *Compiler {
	if size <= 0 {
		size = defaultCacheSize
	}
	// New only fails on a non-positive size.
	cache, _ := lru.New[string, *Compiled](size)
	return &Compiler{cache: cache}
}

// Compile returns the memoized compilation of p, compiling on miss.
// Compilation errors are not cached; a malformed bundle fails every time.
func (c *Compiler) Compile(p IndexQueryParameters) (*Compiled, error) {
	key := p.Hash()
	if compiled, ok := c.cache.Get(key); ok {
		return compiled, nil
	}
	compiled, err := Compile(p)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, compiled)
	return compiled, nil
}

// Purge drops every cached compilation.
func (c *Compiler) Purge() {
	c.cache.Purge()
}
