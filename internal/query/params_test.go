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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagstore/internal/storage"
)

func tv(value string, effect FilterEffect) TagFilterValue {
	return TagFilterValue{Value: value, Type: storage.TagTypeGeneral, Effect: effect}
}

func TestTransformsDoNotMutateReceiver(t *testing.T) {
	base := NewTagFilter().
		Appending(tv("vacation", EffectInclusive)).
		Appending(tv("blurry", EffectExclusive))

	_ = base.Remove("vacation", storage.TagTypeGeneral)
	_ = base.InvertFilter("blurry", storage.TagTypeGeneral)
	_ = base.ToggleOperator()
	_ = base.WithEnabled(false)

	require.Len(t, base.Values, 2)
	assert.Equal(t, EffectInclusive, base.Values[0].Effect)
	assert.Equal(t, EffectExclusive, base.Values[1].Effect)
	assert.Equal(t, OperatorAnd, base.Operator)
	assert.True(t, base.Enabled)
}

func TestAppendingReplacesEffectOfExistingEntry(t *testing.T) {
	p := NewTagFilter().Appending(tv("vacation", EffectInclusive))
	p = p.Appending(tv("vacation", EffectExclusive))

	require.Len(t, p.Values, 1)
	assert.Equal(t, EffectExclusive, p.Values[0].Effect)
}

func TestInvertFilterPreservesPosition(t *testing.T) {
	p := NewTagFilter().
		Appending(tv("a", EffectInclusive)).
		Appending(tv("b", EffectInclusive)).
		Appending(tv("c", EffectInclusive))

	p = p.InvertFilter("b", storage.TagTypeGeneral)

	assert.Equal(t, "b", p.Values[1].Value)
	assert.Equal(t, EffectExclusive, p.Values[1].Effect)
	assert.Equal(t, EffectInclusive, p.Values[0].Effect)
	assert.Equal(t, EffectInclusive, p.Values[2].Effect)
}

func TestReplaceKeepsPosition(t *testing.T) {
	p := NewTagFilter().
		Appending(tv("a", EffectInclusive)).
		Appending(tv("b", EffectInclusive))

	p = p.Replace("a", storage.TagTypeGeneral, tv("z", EffectExclusive))

	require.Len(t, p.Values, 2)
	assert.Equal(t, "z", p.Values[0].Value)
	assert.Equal(t, "b", p.Values[1].Value)
}

func TestKeyIgnoresConstructionHistory(t *testing.T) {
	a := NewTagFilter().
		Appending(tv("x", EffectInclusive)).
		Appending(tv("y", EffectExclusive))
	b := TagFilterParam{
		Values: []TagFilterValue{
			{Value: "x", Type: storage.TagTypeGeneral, Effect: EffectInclusive},
			{Value: "y", Type: storage.TagTypeGeneral, Effect: EffectExclusive},
		},
		Operator: OperatorAnd,
		Enabled:  true,
	}
	assert.Equal(t, a.Key(), b.Key())

	// Functional differences change the key.
	assert.NotEqual(t, a.Key(), a.ToggleOperator().Key())
	assert.NotEqual(t, a.Key(), a.WithEnabled(false).Key())
	assert.NotEqual(t, a.Key(), a.InvertFilter("x", storage.TagTypeGeneral).Key())
}

func TestQueryParametersJSONRoundTrip(t *testing.T) {
	p := IndexQueryParameters{
		Root:      "/tmp/photos",
		Recursive: true,
		Tags: NewTagFilter().
			Appending(tv("vacation", EffectInclusive)).
			Appending(tv("blurry", EffectExclusive)),
		Strings:    NewStringFilter().Appending("cat"),
		Sort:       SortByCreated,
		Visibility: VisibilityVisible,
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var got IndexQueryParameters
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, p, got)
	assert.Equal(t, p.Hash(), got.Hash())
}
