package badger

// Key prefixes for different data types
const (
	documentRecordPrefix = "docrec:"
	documentUserPrefix   = "docusr:"
	vectorRecordPrefix   = "vecrec:"
	vectorDocumentPrefix = "vecdoc:"
)

// Index keys join their components with a NUL so that one user's or
// document's prefix never matches another whose id extends it.
const keySep = "\x00"

// makeDocumentKey generates the primary key for a document.
func makeDocumentKey(id string) []byte {
	return []byte(documentRecordPrefix + id)
}

// makeDocumentUserKey generates the owner index key.
// Format: prefix userID NUL documentID
func makeDocumentUserKey(userID, id string) []byte {
	return []byte(documentUserPrefix + userID + keySep + id)
}

// makePartialDocumentUserKey generates the owner index prefix for a user.
func makePartialDocumentUserKey(userID string) []byte {
	return []byte(documentUserPrefix + userID + keySep)
}

// makeVectorKey generates the primary key for a vector record.
func makeVectorKey(id string) []byte {
	return []byte(vectorRecordPrefix + id)
}

// makeVectorDocumentKey generates the document index key for a vector record.
// Format: prefix documentID NUL recordID
func makeVectorDocumentKey(documentID, id string) []byte {
	return []byte(vectorDocumentPrefix + documentID + keySep + id)
}

// makePartialVectorDocumentKey generates the document index prefix.
func makePartialVectorDocumentKey(documentID string) []byte {
	return []byte(vectorDocumentPrefix + documentID + keySep)
}

// idFromIndexKey extracts the trailing id from an index key with the given prefix.
func idFromIndexKey(key, prefix []byte) string {
	return string(key[len(prefix):])
}
