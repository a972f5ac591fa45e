package dicomnet

// storageSOPClasses lists the Storage SOP Classes this SCP accepts C-STORE
// for. This is not exhaustive of the DICOM registry, but covers the
// modalities this system is built around.
var storageSOPClasses = map[string]string{
	"1.2.840.10008.5.1.4.1.1.2":      "CT Image Storage",
	"1.2.840.10008.5.1.4.1.1.2.1":    "Enhanced CT Image Storage",
	"1.2.840.10008.5.1.4.1.1.4":      "MR Image Storage",
	"1.2.840.10008.5.1.4.1.1.4.1":    "Enhanced MR Image Storage",
	"1.2.840.10008.5.1.4.1.1.1":      "Computed Radiography Image Storage",
	"1.2.840.10008.5.1.4.1.1.1.1":    "Digital X-Ray Image Storage - For Presentation",
	"1.2.840.10008.5.1.4.1.1.1.1.1":  "Digital X-Ray Image Storage - For Processing",
	"1.2.840.10008.5.1.4.1.1.6.1":    "Ultrasound Image Storage",
	"1.2.840.10008.5.1.4.1.1.20":     "Nuclear Medicine Image Storage",
	"1.2.840.10008.5.1.4.1.1.128":    "Positron Emission Tomography Image Storage",
	"1.2.840.10008.5.1.4.1.1.7":      "Secondary Capture Image Storage",
	"1.2.840.10008.5.1.4.1.1.7.1":    "Multi-frame Single Bit Secondary Capture Image Storage",
	"1.2.840.10008.5.1.4.1.1.7.2":    "Multi-frame Grayscale Byte Secondary Capture Image Storage",
	"1.2.840.10008.5.1.4.1.1.7.3":    "Multi-frame Grayscale Word Secondary Capture Image Storage",
	"1.2.840.10008.5.1.4.1.1.7.4":    "Multi-frame True Color Secondary Capture Image Storage",
}

// IsStorageSOPClass reports whether uid identifies a SOP Class this SCP
// stores via C-STORE.
func IsStorageSOPClass(uid string) bool {
	_, ok := storageSOPClasses[uid]
	return ok
}

// StorageSOPClassName returns the human-readable name for a supported
// Storage SOP Class, or "" if unsupported.
func StorageSOPClassName(uid string) string {
	return storageSOPClasses[uid]
}

// StorageSOPClassUIDs returns every Storage SOP Class UID this SCP proposes
// presentation contexts for when it acts as an SCU (not used by the SCP
// listener itself, kept for completeness of the supported-class table).
func StorageSOPClassUIDs() []string {
	uids := make([]string, 0, len(storageSOPClasses))
	for uid := range storageSOPClasses {
		uids = append(uids, uid)
	}
	return uids
}
