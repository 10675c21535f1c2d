package fieldbus

import (
	"fmt"
	"sort"
)

// Signal is the name of a logical fieldbus signal as used in the configuration.
type Signal string

// Host to core signals.
const (
	SigCycleStart          Signal = "cycle_start"
	SigSeamSeriesStart     Signal = "seam_series_start"
	SigSeamStart           Signal = "seam_start"
	SigSeamSeriesNumber    Signal = "seam_series_number"
	SigSeamNumber          Signal = "seam_number"
	SigProductType         Signal = "product_type"
	SigProductNumber       Signal = "product_number"
	SigExtendedProductInfo Signal = "extended_product_info"
	SigCalibrationStart    Signal = "calibration_start"
	SigCalibrationType     Signal = "calibration_type"
	SigHomeAxis            Signal = "home_axis"
	SigQuitSystemFault     Signal = "quit_system_fault"
	SigSequenceStart       Signal = "sequence_start"
	SigScanmasterStep      Signal = "scanmaster_step"
	SigGenericDigitalIn    Signal = "generic_digital_in"
	SigAnalogIn1           Signal = "analog_in_1"
	SigAnalogIn2           Signal = "analog_in_2"
	SigS6KBatchID          Signal = "s6k_batch_id"
	SigS6KSeamSeries       Signal = "s6k_seam_series"
	SigS6KSeam             Signal = "s6k_seam"
	SigS6KResultAck        Signal = "s6k_result_ack"
	SigS6KQualityAck       Signal = "s6k_quality_ack"
)

// Core to host signals.
const (
	SigSystemReady          Signal = "system_ready"
	SigSystemFault          Signal = "system_fault"
	SigCycleAcknowledge     Signal = "cycle_acknowledge"
	SigInspectionOK         Signal = "inspection_ok"
	SigInspectionIncomplete Signal = "inspection_incomplete"
	SigSumErrorLatched      Signal = "sum_error_latched"
	SigSumErrorSeam         Signal = "sum_error_seam"
	SigSumErrorSeamSeries   Signal = "sum_error_seam_series"
	SigQualityError         Signal = "quality_error"
	SigCalibrationBusy      Signal = "calibration_busy"
	SigCalibrationResult    Signal = "calibration_result"
	SigProcessingActive     Signal = "processing_active"
	SigS6KBatchMirror       Signal = "s6k_batch_mirror"
	SigS6KSeamSeriesMirror  Signal = "s6k_seam_series_mirror"
	SigS6KSeamMirror        Signal = "s6k_seam_mirror"
	SigS6KResultBlock       Signal = "s6k_result_block"
	SigS6KResultIndex       Signal = "s6k_result_index"
	SigS6KResultValid       Signal = "s6k_result_valid"
	SigS6KSeamErrorCat1     Signal = "s6k_seam_error_cat1"
	SigS6KSeamErrorCat2     Signal = "s6k_seam_error_cat2"
	SigS6KQualityValid      Signal = "s6k_quality_valid"
)

type signalInfo struct {
	dir  Direction
	kind Kind
}

var catalog = map[Signal]signalInfo{
	SigCycleStart:          {Input, KindBit},
	SigSeamSeriesStart:     {Input, KindBit},
	SigSeamStart:           {Input, KindBit},
	SigSeamSeriesNumber:    {Input, KindField},
	SigSeamNumber:          {Input, KindField},
	SigProductType:         {Input, KindField},
	SigProductNumber:       {Input, KindField},
	SigExtendedProductInfo: {Input, KindString},
	SigCalibrationStart:    {Input, KindBit},
	SigCalibrationType:     {Input, KindField},
	SigHomeAxis:            {Input, KindBit},
	SigQuitSystemFault:     {Input, KindBit},
	SigSequenceStart:       {Input, KindBit},
	SigScanmasterStep:      {Input, KindField},
	SigGenericDigitalIn:    {Input, KindField},
	SigAnalogIn1:           {Input, KindField},
	SigAnalogIn2:           {Input, KindField},
	SigS6KBatchID:          {Input, KindField},
	SigS6KSeamSeries:       {Input, KindField},
	SigS6KSeam:             {Input, KindField},
	SigS6KResultAck:        {Input, KindBit},
	SigS6KQualityAck:       {Input, KindBit},

	SigSystemReady:          {Output, KindBit},
	SigSystemFault:          {Output, KindBit},
	SigCycleAcknowledge:     {Output, KindBit},
	SigInspectionOK:         {Output, KindBit},
	SigInspectionIncomplete: {Output, KindBit},
	SigSumErrorLatched:      {Output, KindBit},
	SigSumErrorSeam:         {Output, KindBit},
	SigSumErrorSeamSeries:   {Output, KindBit},
	SigQualityError:         {Output, KindField},
	SigCalibrationBusy:      {Output, KindBit},
	SigCalibrationResult:    {Output, KindField},
	SigProcessingActive:     {Output, KindBit},
	SigS6KBatchMirror:       {Output, KindField},
	SigS6KSeamSeriesMirror:  {Output, KindField},
	SigS6KSeamMirror:        {Output, KindField},
	SigS6KResultBlock:       {Output, KindBytes},
	SigS6KResultIndex:       {Output, KindField},
	SigS6KResultValid:       {Output, KindBit},
	SigS6KSeamErrorCat1:     {Output, KindField},
	SigS6KSeamErrorCat2:     {Output, KindField},
	SigS6KQualityValid:      {Output, KindBit},
}

// Lookup returns the direction and kind of a cataloged signal.
func Lookup(name string) (Signal, Direction, Kind, error) {
	sig := Signal(name)
	info, ok := catalog[sig]
	if !ok {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}

	return sig, info.dir, info.kind, nil
}

// Signals returns all cataloged signal names in lexical order.
func Signals() []Signal {
	out := make([]Signal, 0, len(catalog))
	for sig := range catalog {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
