package form

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/homai-panel/pkg/paramset"
)

func ptr(f float64) *float64 { return &f }

func testSchema() *paramset.FormSchema {
	s := &paramset.FormSchema{
		ChannelAddress: "OEQ0000001:1",
		ParamsetKey:    paramset.KeyMaster,
		Sections: []paramset.Section{
			{ID: "general", Title: "General", Parameters: []paramset.Parameter{
				{ID: "ROOM_NAME", Label: "Room", Type: paramset.TypeString, Writable: true, CurrentValue: "Hall"},
				{ID: "ECO_MODE", Label: "Eco", Type: paramset.TypeBoolean, Writable: true, CurrentValue: false},
				{ID: "FIRMWARE", Label: "Firmware", Type: paramset.TypeString, Widget: paramset.WidgetText, CurrentValue: "2.4.1"},
			}},
			{ID: "climate", Title: "Climate", Parameters: []paramset.Parameter{
				{ID: "VALVE_MAX", Label: "Valve max", Type: paramset.TypeFloat, Percent: true, Min: ptr(0), Max: ptr(1), Writable: true, CurrentValue: 1.0},
				{ID: "MODE", Label: "Mode", Type: paramset.TypeEnum, Options: []string{"AUTO", "MANUAL", "PARTY"}, Writable: true, CurrentValue: 0},
				{ID: "CALIBRATE", Label: "Calibrate", Type: paramset.TypeAction, Writable: true},
			}},
		},
	}
	s.Count()
	return s
}

func TestRender_ShowsPendingOrCurrent(t *testing.T) {
	changes := paramset.NewChangeSet()
	changes.Set("ROOM_NAME", "Kitchen", "Hall")

	f := Render(testSchema(), changes, paramset.ValidationErrors{"MODE": "bad"}, nil)

	room, ok := f.Control("ROOM_NAME")
	require.True(t, ok)
	assert.Equal(t, "Kitchen", room.Value)
	assert.True(t, room.Modified)

	eco, _ := f.Control("ECO_MODE")
	assert.Equal(t, false, eco.Value)
	assert.False(t, eco.Modified)
	assert.Equal(t, paramset.WidgetToggle, eco.Widget)

	mode, _ := f.Control("MODE")
	assert.Equal(t, "AUTO", mode.Display)
	assert.Equal(t, "bad", mode.Error)

	valve, _ := f.Control("VALVE_MAX")
	assert.Equal(t, "100%", valve.Display)
	assert.Equal(t, paramset.WidgetSlider, valve.Widget)

	assert.Equal(t, 1, f.Modified)
	assert.Len(t, f.Controls(), 6)
}

func TestRender_ReadOnlyIsDisabledEvenWhenStaged(t *testing.T) {
	changes := paramset.NewChangeSet()
	changes.Stage("FIRMWARE", "3.0")

	var events []ValueChanged
	f := Render(testSchema(), changes, nil, func(e ValueChanged) { events = append(events, e) })

	fw, _ := f.Control("FIRMWARE")
	assert.True(t, fw.Disabled)
	assert.Equal(t, paramset.WidgetReadOnly, fw.Widget)
	assert.ErrorIs(t, fw.Change("4.0"), ErrDisabled)
	assert.ErrorIs(t, fw.Input("4.0"), ErrDisabled)
	assert.Empty(t, events)
}

func TestControl_EmitsSingleEvent(t *testing.T) {
	changes := paramset.NewChangeSet()
	var events []ValueChanged
	f := Render(testSchema(), changes, nil, func(e ValueChanged) { events = append(events, e) })

	room, _ := f.Control("ROOM_NAME")
	require.NoError(t, room.Change("Office"))
	require.Len(t, events, 1)
	assert.Equal(t, ValueChanged{ParameterID: "ROOM_NAME", Value: "Office", Current: "Hall"}, events[0])
	// the renderer never mutates the change set
	assert.False(t, changes.IsDirty())
}

func TestControl_ActionStagesTrue(t *testing.T) {
	var events []ValueChanged
	f := Render(testSchema(), paramset.NewChangeSet(), nil, func(e ValueChanged) { events = append(events, e) })

	btn, _ := f.Control("CALIBRATE")
	require.NoError(t, btn.Activate())
	require.NoError(t, btn.Change("anything"))
	require.Len(t, events, 2)
	assert.Equal(t, true, events[0].Value)
	assert.Equal(t, true, events[1].Value)

	room, _ := f.Control("ROOM_NAME")
	assert.ErrorIs(t, room.Activate(), ErrNotAction)
}

func TestControl_Input(t *testing.T) {
	var got []any
	f := Render(testSchema(), paramset.NewChangeSet(), nil, func(e ValueChanged) { got = append(got, e.Value) })

	valve, _ := f.Control("VALVE_MAX")
	require.NoError(t, valve.Input("40%"))
	mode, _ := f.Control("MODE")
	require.NoError(t, mode.Input("party"))
	require.NoError(t, mode.Input("1"))
	eco, _ := f.Control("ECO_MODE")
	require.NoError(t, eco.Input("on"))

	assert.Equal(t, []any{0.4, 2, 1, true}, got)

	assert.ErrorIs(t, mode.Input("7"), ErrInvalidInput)
	assert.ErrorIs(t, valve.Input("lots"), ErrInvalidInput)
}

func TestParse_IntegersAreDecimal(t *testing.T) {
	integer := &paramset.Parameter{ID: "BOOST", Type: paramset.TypeInteger}
	enum := &paramset.Parameter{ID: "MODE", Type: paramset.TypeEnum, Options: make([]string, 12)}

	tests := []struct {
		p    *paramset.Parameter
		text string
		want int
	}{
		{integer, "010", 10},
		{integer, "08", 8},
		{integer, " 42 ", 42},
		{integer, "-7", -7},
		{enum, "010", 10},
		{enum, "09", 9},
	}
	for _, tt := range tests {
		v, err := Parse(tt.p, tt.text)
		require.NoError(t, err, tt.text)
		assert.Equal(t, tt.want, v, tt.text)
	}

	for _, text := range []string{"0x10", "1.5", "Inf", "NaN", ""} {
		_, err := Parse(integer, text)
		assert.ErrorIs(t, err, ErrInvalidInput, text)
	}
}

func TestFprint(t *testing.T) {
	changes := paramset.NewChangeSet()
	changes.Set("MODE", 2, 0)
	f := Render(testSchema(), changes, nil, nil)

	var buf bytes.Buffer
	require.NoError(t, Fprint(&buf, f, DefaultLabels))
	out := buf.String()
	assert.Contains(t, out, "[General]")
	assert.Contains(t, out, "[Climate]")
	assert.Contains(t, out, "PARTY")
	assert.Contains(t, out, "modified")
	assert.Contains(t, out, "read-only")
	assert.Contains(t, out, "AUTO|MANUAL|PARTY")
}

func TestFprintGroups(t *testing.T) {
	s := &paramset.FormSchema{Sections: []paramset.Section{{ID: "link", Parameters: []paramset.Parameter{
		{ID: "SHORT_ON_TIME", Type: paramset.TypeFloat, Writable: true, KeypressGroup: paramset.KeypressShort, CurrentValue: 0.0},
		{ID: "LONG_ON_TIME", Type: paramset.TypeFloat, Writable: true, KeypressGroup: paramset.KeypressLong, CurrentValue: 0.0},
	}}}}
	f := Render(s, paramset.NewChangeSet(), nil, nil)

	var buf bytes.Buffer
	require.NoError(t, FprintGroups(&buf, f, paramset.GroupByKeypress(s), DefaultLabels))
	out := buf.String()
	assert.Contains(t, out, "[Short keypress]")
	assert.Contains(t, out, "[Long keypress]")
	assert.NotContains(t, out, "[Common]")
}
