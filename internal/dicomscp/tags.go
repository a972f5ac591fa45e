package dicomscp

import (
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// parsedAttributes holds everything the ingest pipeline needs out of a
// dataset's elements, independent of how those elements were encoded on the
// wire.
type parsedAttributes struct {
	PatientID                 string
	PatientName               string
	PatientBirthDate          string
	PatientSex                string
	StudyInstanceUID          string
	AccessionNumber           string
	StudyDescription          string
	ReferringPhysicianName    string
	SeriesInstanceUID         string
	Modality                  string
	SeriesNumber              int
	SeriesDescription         string
	BodyPartExamined          string
	PixelSpacing              string
	SliceThickness            float64
	SOPClassUID               string
	SOPInstanceUID            string
	InstanceNumber            int
	Rows                      int
	Columns                   int
	BitsAllocated             int
	PixelRepresentation       int
	RescaleSlope              float64
	RescaleIntercept          float64
	WindowCenter              *float64
	WindowWidth               *float64
	PhotometricInterpretation string
}

func parseAttributes(ds dicom.Dataset) parsedAttributes {
	a := parsedAttributes{
		RescaleSlope:     1,
		RescaleIntercept: 0,
	}

	a.PatientID = firstString(ds, tag.PatientID)
	a.PatientName = firstString(ds, tag.PatientName)
	a.PatientBirthDate = firstString(ds, tag.PatientBirthDate)
	a.PatientSex = firstString(ds, tag.PatientSex)
	a.StudyInstanceUID = firstString(ds, tag.StudyInstanceUID)
	a.AccessionNumber = firstString(ds, tag.AccessionNumber)
	a.StudyDescription = firstString(ds, tag.StudyDescription)
	a.ReferringPhysicianName = firstString(ds, tag.ReferringPhysicianName)
	a.SeriesInstanceUID = firstString(ds, tag.SeriesInstanceUID)
	a.Modality = firstString(ds, tag.Modality)
	a.SeriesDescription = firstString(ds, tag.SeriesDescription)
	a.BodyPartExamined = firstString(ds, tag.BodyPartExamined)
	a.PixelSpacing = firstString(ds, tag.PixelSpacing)
	a.SOPClassUID = firstString(ds, tag.SOPClassUID)
	a.SOPInstanceUID = firstString(ds, tag.SOPInstanceUID)
	a.PhotometricInterpretation = firstString(ds, tag.PhotometricInterpretation)

	if v, ok := firstFloat(ds, tag.SeriesNumber); ok {
		a.SeriesNumber = int(v)
	}
	if v, ok := firstFloat(ds, tag.SliceThickness); ok {
		a.SliceThickness = v
	}
	if v, ok := firstFloat(ds, tag.InstanceNumber); ok {
		a.InstanceNumber = int(v)
	}
	if v, ok := firstInt(ds, tag.Rows); ok {
		a.Rows = v
	}
	if v, ok := firstInt(ds, tag.Columns); ok {
		a.Columns = v
	}
	if v, ok := firstInt(ds, tag.BitsAllocated); ok {
		a.BitsAllocated = v
	}
	if v, ok := firstInt(ds, tag.PixelRepresentation); ok {
		a.PixelRepresentation = v
	}
	if v, ok := firstFloat(ds, tag.RescaleSlope); ok {
		a.RescaleSlope = v
	}
	if v, ok := firstFloat(ds, tag.RescaleIntercept); ok {
		a.RescaleIntercept = v
	}
	if v, ok := firstFloat(ds, tag.WindowCenter); ok {
		a.WindowCenter = &v
	}
	if v, ok := firstFloat(ds, tag.WindowWidth); ok {
		a.WindowWidth = &v
	}

	return a
}

// firstString reads a string-valued (or string-encoded) element's first
// value, returning "" if the element is absent. Most textual and
// numeric-as-text DICOM VRs (LO, SH, UI, CS, DA, DS, IS) surface through the
// library as []string.
func firstString(ds dicom.Dataset, t tag.Tag) string {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return ""
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok || len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// firstInt reads a binary integer VR's (US, UL, SS) first value; these
// surface through the library as []int rather than string-encoded text.
func firstInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil {
		return 0, false
	}
	vals, ok := elem.Value.GetValue().([]int)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// firstFloat reads a DS/IS-encoded numeric element's first value.
func firstFloat(ds dicom.Dataset, t tag.Tag) (float64, bool) {
	s := firstString(ds, t)
	if s == "" {
		return 0, false
	}
	// Multi-valued VOI window elements ("100\\200") take the first value,
	// matching the convention most viewers use when a dataset proposes more
	// than one preset window.
	if idx := strings.IndexByte(s, '\\'); idx >= 0 {
		s = s[:idx]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
