package codec

import "encoding/json"

// Serializer converts a user value of type V to and from bytes. It is the
// pluggable "JSON (de)serialization of user values" collaborator the spec
// treats as external to the core: the coordinator only ever calls Marshal
// and Unmarshal, never assumes a particular wire format.
//
// Marshal returning an error is how a value is rejected as non-serializable;
// the coordinator surfaces that as an invalid-value error.
type Serializer[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// JSONSerializer is the default Serializer, backed by encoding/json.
type JSONSerializer[V any] struct{}

// Marshal encodes v as JSON.
func (JSONSerializer[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into a V.
func (JSONSerializer[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := json.Unmarshal(data, &v)
	return v, err
}
