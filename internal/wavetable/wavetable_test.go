package wavetable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, table *Table, slots ...int) {
	t.Helper()
	for _, slot := range slots {
		l, err := table.Allocate(slot, Spec{Name: "taken", Frames: 1, Stereo: true})
		require.NoError(t, err)
		require.NoError(t, l.Invalidate())
	}
}

func TestFindNextAvailable(t *testing.T) {
	table := New()
	fill(t, table, 5, 6)

	assert.Equal(t, 7, FindNextAvailable(table, 5, Capacity))
	assert.Equal(t, 0, FindNextAvailable(table, 0, Capacity))
	assert.Equal(t, 4, FindNextAvailable(table, 4, Capacity))
}

func TestFindNextAvailable_TailFull(t *testing.T) {
	table := New()
	for slot := 190; slot < Capacity; slot++ {
		fill(t, table, slot)
	}

	assert.Equal(t, -1, FindNextAvailable(table, 190, Capacity))
	assert.Equal(t, -1, FindNextAvailable(table, 195, Capacity))
	assert.Equal(t, 189, FindNextAvailable(table, 189, Capacity))
}

func TestFindNextAvailable_OutOfRange(t *testing.T) {
	table := New()

	assert.Equal(t, -1, FindNextAvailable(table, -1, Capacity))
	assert.Equal(t, -1, FindNextAvailable(table, Capacity, Capacity))
	assert.Equal(t, -1, FindNextAvailable(table, 250, Capacity))
}

func TestNoteFromMIDI(t *testing.T) {
	assert.Equal(t, 65, NoteFromMIDI(48))
	assert.Equal(t, 1, NoteFromMIDI(0))
	assert.Equal(t, 0x4c, NoteFromMIDI(59))
}

func TestTable_AllocateAndWrite(t *testing.T) {
	table := New()

	l, err := table.Allocate(3, Spec{Name: "take", Frames: 2, Format: FormatFloat32, Stereo: true, RootNote: 65})
	require.NoError(t, err)
	assert.False(t, table.Occupied(3), "pending waves are not visible")

	interleaved := []float32{0.1, -0.1, 0.2, -0.2}
	require.NoError(t, l.SetChannelData(interleaved, 0, 2))
	require.NoError(t, l.SetChannelData(interleaved, 1, 2))
	l.SetSampleRate(48000)
	l.SetLoopBounds(0, 2)
	assert.False(t, table.Occupied(3))
	require.NoError(t, l.Invalidate())
	assert.True(t, table.Occupied(3))

	w, ok := table.Wave(3)
	require.True(t, ok)
	assert.Equal(t, "take", w.Name)
	assert.Equal(t, 48000, w.SampleRate)
	assert.Equal(t, 65, w.RootNote)
	assert.Equal(t, 2, w.LoopEnd)
	assert.Equal(t, []float32{0.1, 0.2}, w.Channel(0))
	assert.Equal(t, []float32{-0.1, -0.2}, w.Channel(1))
}

func TestTable_AllocateErrors(t *testing.T) {
	table := New()

	_, err := table.Allocate(-1, Spec{})
	assert.ErrorIs(t, err, ErrSlotOutOfRange)

	_, err = table.Allocate(Capacity, Spec{})
	assert.ErrorIs(t, err, ErrSlotOutOfRange)

	l, err := table.Allocate(0, Spec{Frames: 4, Stereo: true})
	require.NoError(t, err)
	assert.Error(t, l.SetChannelData([]float32{1, 2}, 0, 2), "too short")
	assert.Error(t, l.SetChannelData(make([]float32, 8), 2, 2), "no third channel")
	assert.Error(t, l.SetChannelData(make([]float32, 8), 0, 0), "bad stride")
}

func TestTable_AllocateReplaces(t *testing.T) {
	table := New()
	fill(t, table, 9)

	stale, err := table.Allocate(9, Spec{Name: "first", Frames: 1})
	require.NoError(t, err)
	latest, err := table.Allocate(9, Spec{Name: "second", Frames: 1})
	require.NoError(t, err)

	w, _ := table.Wave(9)
	assert.Equal(t, "taken", w.Name, "the old wave stays until a commit")

	assert.Error(t, stale.Invalidate(), "a layer whose slot was reallocated cannot commit")
	require.NoError(t, latest.Invalidate())
	w, _ = table.Wave(9)
	assert.Equal(t, "second", w.Name)
}

func TestTable_FailedCommitKeepsPreviousWave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "table")
	table, err := Open(dir)
	require.NoError(t, err)

	l, err := table.Allocate(0, Spec{Name: "old", Frames: 1, Stereo: true})
	require.NoError(t, err)
	require.NoError(t, l.Invalidate())

	require.NoError(t, os.RemoveAll(dir))

	l, err = table.Allocate(0, Spec{Name: "new", Frames: 1, Stereo: true})
	require.NoError(t, err)
	assert.Error(t, l.Invalidate())

	w, ok := table.Wave(0)
	require.True(t, ok)
	assert.Equal(t, "old", w.Name)

	_, err = table.Allocate(1, Spec{Name: "pending", Frames: 1})
	require.NoError(t, err)
	assert.False(t, table.Occupied(1))
	assert.Equal(t, 1, FindNextAvailable(table, 0, Capacity))
}

func TestTable_Clear(t *testing.T) {
	table := New()
	fill(t, table, 1)

	require.NoError(t, table.Clear(1))
	assert.False(t, table.Occupied(1))
	assert.ErrorIs(t, table.Clear(1), ErrEmptySlot)
	assert.ErrorIs(t, table.Clear(500), ErrSlotOutOfRange)
}

func TestTable_PersistRoundTrip(t *testing.T) {
	dir := t.TempDir()

	table, err := Open(dir)
	require.NoError(t, err)

	l, err := table.Allocate(4, Spec{Name: "EasyRec 2024-01-02 03.04.05", Frames: 3, Stereo: true, RootNote: 65})
	require.NoError(t, err)
	data := []float32{0.5, -0.5, 0.25, -0.25, 0, 1.5}
	require.NoError(t, l.SetChannelData(data, 0, 2))
	require.NoError(t, l.SetChannelData(data, 1, 2))
	l.SetSampleRate(44100)
	l.SetLoopBounds(0, 3)
	require.NoError(t, l.Invalidate())

	assert.FileExists(t, filepath.Join(dir, "005.wav"))
	assert.FileExists(t, filepath.Join(dir, indexFileName))
	assert.Equal(t, filepath.Join(dir, "005.wav"), table.Path(4))

	reopened, err := Open(dir)
	require.NoError(t, err)

	w, ok := reopened.Wave(4)
	require.True(t, ok)
	assert.Equal(t, "EasyRec 2024-01-02 03.04.05", w.Name)
	assert.Equal(t, 3, w.Frames)
	assert.Equal(t, 44100, w.SampleRate)
	assert.Equal(t, FormatFloat32, w.Format)
	assert.InDeltaSlice(t, []float32{0.5, 0.25, 0}, w.Channel(0), 1e-7)
	// 1.5 is beyond full scale and comes back clamped
	assert.InDeltaSlice(t, []float32{-0.5, -0.25, 1}, w.Channel(1), 1e-7)

	require.NoError(t, reopened.Clear(4))
	_, err = os.Stat(filepath.Join(dir, "005.wav"))
	assert.True(t, os.IsNotExist(err))

	again, err := Open(dir)
	require.NoError(t, err)
	assert.Empty(t, again.Waves())
}

func TestTable_PersistKeepsFormat(t *testing.T) {
	dir := t.TempDir()
	table, err := Open(dir)
	require.NoError(t, err)

	fine := []float32{0.123456, -0.000987}
	for slot, format := range []Format{FormatFloat32, FormatInt16} {
		l, err := table.Allocate(slot, Spec{Name: string(format), Frames: 2, Format: format})
		require.NoError(t, err)
		require.NoError(t, l.SetChannelData(fine, 0, 1))
		require.NoError(t, l.Invalidate())
	}

	reopened, err := Open(dir)
	require.NoError(t, err)

	w, ok := reopened.Wave(0)
	require.True(t, ok)
	assert.Equal(t, FormatFloat32, w.Format)
	assert.InDeltaSlice(t, fine, w.Channel(0), 1e-7)

	w, ok = reopened.Wave(1)
	require.True(t, ok)
	assert.Equal(t, FormatInt16, w.Format)
	assert.InDeltaSlice(t, fine, w.Channel(0), 1.0/32768)
}

func TestOpen_SkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	index := "waves:\n  - slot: 2\n    name: ghost\n    frames: 10\n    stereo: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, indexFileName), []byte(index), 0644))

	table, err := Open(dir)
	require.NoError(t, err)
	assert.False(t, table.Occupied(2))
}

func TestOpen_RequiresDirectory(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
