package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatLetterID(t *testing.T) {
	assert.Equal(t, "DHQ/GAR/ABJ/2025/0001/ACCN", FormatLetterID(2025, 1))
	assert.Equal(t, "DHQ/GAR/ABJ/2025/0042/ACCN", FormatLetterID(2025, 42))
	assert.Equal(t, "DHQ/GAR/ABJ/2026/12345/ACCN", FormatLetterID(2026, 12345))
}

func TestUnitLabel(t *testing.T) {
	u := &LivingUnit{
		QuarterName:       "Eagle Quarters",
		BlockName:         "2",
		FlatHouseRoomName: "Flat 5",
		Location:          "Mogadishu Cantonment",
	}
	assert.Equal(t, "Eagle Quarters Blk 2/Flat 5, Mogadishu Cantonment", u.Label())

	u = &LivingUnit{QuarterName: "Harmony Estate"}
	assert.Equal(t, "Harmony Estate", u.Label())
}

func TestSplitDependents(t *testing.T) {
	adults, children := SplitDependents([]Dependent{
		{Name: "A", Age: 34},
		{Name: "B", Age: 18},
		{Name: "C", Age: 17},
		{Name: "D", Age: 2},
	})
	assert.Equal(t, 2, adults)
	assert.Equal(t, 2, children)

	adults, children = SplitDependents(nil)
	assert.Equal(t, 0, adults)
	assert.Equal(t, 0, children)
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsValidation(Validationf("bad input")))
	assert.True(t, IsNotFound(NotFoundf("missing")))
	assert.True(t, IsConflict(Conflictf("taken")))
	assert.True(t, IsInvariant(Invariantf("corrupt")))
	assert.False(t, IsValidation(NotFoundf("missing")))
	assert.False(t, IsConflict(nil))
}
