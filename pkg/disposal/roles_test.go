package disposal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRoles(t *testing.T) {
	c := DefaultClassifier()
	require.Equal(t, RoleTrash, c.Role("bottle"))
	require.Equal(t, RoleTrash, c.Role("Plastic Bag"))
	require.Equal(t, RoleTrash, c.Role(" BANANA "))
	require.Equal(t, RoleBin, c.Role("Trash Can"))
	require.Equal(t, RoleBin, c.Role("waste container"))
	require.Equal(t, RolePerson, c.Role("PERSON"))
	require.Equal(t, RoleUnclassified, c.Role("dog"))
	require.Equal(t, RoleUnclassified, c.Role(""))
	require.Equal(t, "bin", RoleBin.String())
	require.Equal(t, "unclassified", RoleUnclassified.String())

	// Callers get a copy
	v := c.Vocabulary()
	require.Equal(t, DefaultVocabulary(), v)
	v.Trash[0] = "giraffe"
	require.Equal(t, RoleTrash, c.Role("bottle"))
	require.Equal(t, "bottle", c.Vocabulary().Trash[0])
}

func TestOverlappingVocabulary(t *testing.T) {
	_, err := NewClassifier(&Vocabulary{
		Trash: []string{"box"},
		Bin:   []string{"Box"},
	})
	require.Error(t, err)
}

func TestLoadVocabulary(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "vocab.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"trash": ["bottle"], "bin": ["bin"], "person": ["person"]}`), 0644))
	v, err := LoadVocabulary(fn)
	require.NoError(t, err)
	require.Equal(t, []string{"bin"}, v.Bin)

	require.NoError(t, os.WriteFile(fn, []byte(`{"trash": `), 0644))
	_, err = LoadVocabulary(fn)
	require.Error(t, err)
}
