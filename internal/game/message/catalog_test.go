package message

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_GetFallsBackToID(t *testing.T) {
	c := NewCatalog(map[string]string{GroupFull: "The group is full."})
	assert.Equal(t, "The group is full.", c.Get(GroupFull))
	assert.Equal(t, NotMaster, c.Get(NotMaster))

	var nilCatalog *Catalog
	assert.Equal(t, GroupFull, nilCatalog.Get(GroupFull))
}

func TestCatalog_Format(t *testing.T) {
	c := NewCatalog(map[string]string{GroupInvite: "%s invited you to a group."})
	assert.Equal(t, "Ayaka invited you to a group.", c.Format(GroupInvite, "Ayaka"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en.yaml")
	require.NoError(t, os.WriteFile(path, []byte("GROUP_FULL: \"Full.\"\nNOT_MASTER: \"Not master.\"\n"), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, "Full.", c.Get(GroupFull))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCatalog_FormatWithoutVerbs(t *testing.T) {
	c := NewCatalog(nil)
	assert.Equal(t, GroupJoin, c.Format(GroupJoin, "Ayaka"))
}
