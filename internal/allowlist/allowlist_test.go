// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package allowlist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	hosts map[string][]string
	errs  map[string]error
}

func (r *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if err, ok := r.errs[host]; ok {
		return nil, err
	}
	return r.hosts[host], nil
}

type fakeFirewall struct {
	updates []map[string]bool
}

func (f *fakeFirewall) UpdateAllowedIPs(set map[string]bool) error {
	cp := make(map[string]bool, len(set))
	for k, v := range set {
		cp[k] = v
	}
	f.updates = append(f.updates, cp)
	return nil
}

func TestManager_Start_PerformsImmediateSynchronousRefresh(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{
		"codeforces.com": {"1.2.3.4", "::1234"},
	}}
	fw := &fakeFirewall{}
	m := New([]string{"codeforces.com"}, time.Hour, resolver, fw, nil)

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	require.Len(t, fw.updates, 1)
	assert.True(t, fw.updates[0]["1.2.3.4"])
	assert.Len(t, fw.updates[0], 1, "AAAA results should be skipped")
	assert.True(t, m.CurrentSet()["1.2.3.4"])
}

func TestManager_Refresh_OneDomainFailureDoesNotBlockOthers(t *testing.T) {
	resolver := &fakeResolver{
		hosts: map[string][]string{"good.example.com": {"5.6.7.8"}},
		errs:  map[string]error{"bad.example.com": errors.New("nxdomain")},
	}
	fw := &fakeFirewall{}
	m := New([]string{"good.example.com", "bad.example.com"}, time.Hour, resolver, fw, nil)

	err := m.refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, m.CurrentSet()["5.6.7.8"])
}

func TestManager_Refresh_UnchangedSetSkipsFirewallUpdate(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"a.example.com": {"9.9.9.9"}}}
	fw := &fakeFirewall{}
	m := New([]string{"a.example.com"}, time.Hour, resolver, fw, nil)

	require.NoError(t, m.refresh(context.Background()))
	require.Len(t, fw.updates, 1)

	require.NoError(t, m.refresh(context.Background()))
	assert.Len(t, fw.updates, 1, "a second refresh resolving the same set must not call UpdateAllowedIPs again")
}

func TestManager_Refresh_AllFailuresKeepPreviousSet(t *testing.T) {
	resolver := &fakeResolver{hosts: map[string][]string{"a.example.com": {"9.9.9.9"}}}
	fw := &fakeFirewall{}
	m := New([]string{"a.example.com"}, time.Hour, resolver, fw, nil)
	require.NoError(t, m.refresh(context.Background()))
	require.True(t, m.CurrentSet()["9.9.9.9"])

	resolver.errs = map[string]error{"a.example.com": errors.New("timeout")}
	resolver.hosts = nil
	err := m.refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, m.CurrentSet()["9.9.9.9"], "previous set should survive a total resolution failure")
}
