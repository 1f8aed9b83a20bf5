package wire

// Server->client message types. Client->server types reuse the same small
// integers in a distinct namespace: each side only ever decodes frames
// arriving from its peer, so the two enumerations never collide in
// practice even though their numeric values overlap.
const (
	TypeAlloc      uint8 = 1
	TypeFree       uint8 = 2
	TypeReferences uint8 = 3
	TypePause      uint8 = 4
	TypeResume     uint8 = 5
)

// Client->server message types.
const (
	TypeReferencesRequest uint8 = 1
	TypePauseRequest      uint8 = 2
	TypeResumeRequest     uint8 = 3
)

// AllocMsg is the server->client ALLOC payload.
type AllocMsg struct {
	Frame     uint64
	Addr      uint64
	Size      uint32
	TypeName  string
	CallStack string
}

func (m AllocMsg) Encode(w *Writer) {
	w.PutUint64(m.Frame)
	w.PutUint64(m.Addr)
	w.PutUint32(m.Size)
	w.PutVarString(m.TypeName)
	w.PutVarString(m.CallStack)
}

func DecodeAlloc(r *Reader) (AllocMsg, error) {
	var m AllocMsg
	var err error
	if m.Frame, err = r.Uint64(); err != nil {
		return m, err
	}
	if m.Addr, err = r.Uint64(); err != nil {
		return m, err
	}
	if m.Size, err = r.Uint32(); err != nil {
		return m, err
	}
	if m.TypeName, err = r.VarString(); err != nil {
		return m, err
	}
	if m.CallStack, err = r.VarString(); err != nil {
		return m, err
	}
	return m, nil
}

// FreeMsg is the server->client FREE payload.
type FreeMsg struct {
	Frame uint64
	Addr  uint64
	Size  uint32
}

func (m FreeMsg) Encode(w *Writer) {
	w.PutUint64(m.Frame)
	w.PutUint64(m.Addr)
	w.PutUint32(m.Size)
}

func DecodeFree(r *Reader) (FreeMsg, error) {
	var m FreeMsg
	var err error
	if m.Frame, err = r.Uint64(); err != nil {
		return m, err
	}
	if m.Addr, err = r.Uint64(); err != nil {
		return m, err
	}
	if m.Size, err = r.Uint32(); err != nil {
		return m, err
	}
	return m, nil
}

// ReferenceEntry is one object in a REFERENCES response.
type ReferenceEntry struct {
	Addr    uint64
	Type    string
	Parents []uint64
}

// ReferencesResponse is the server->client REFERENCES payload.
type ReferencesResponse struct {
	RequestID uint64
	Entries   []ReferenceEntry
}

func (m ReferencesResponse) Encode(w *Writer) {
	w.PutUint64(m.RequestID)
	w.PutVarint(uint64(len(m.Entries)))
	for _, e := range m.Entries {
		w.PutVarint(e.Addr)
		w.PutVarString(e.Type)
		w.PutVarint(uint64(len(e.Parents)))
		for _, p := range e.Parents {
			w.PutVarint(p)
		}
	}
}

func DecodeReferencesResponse(r *Reader) (ReferencesResponse, error) {
	var m ReferencesResponse
	var err error
	if m.RequestID, err = r.Uint64(); err != nil {
		return m, err
	}
	n, err := r.Varint()
	if err != nil {
		return m, err
	}
	m.Entries = make([]ReferenceEntry, 0, n)
	for i := uint64(0); i < n; i++ {
		var e ReferenceEntry
		if e.Addr, err = r.Varint(); err != nil {
			return m, err
		}
		if e.Type, err = r.VarString(); err != nil {
			return m, err
		}
		p, err := r.Varint()
		if err != nil {
			return m, err
		}
		e.Parents = make([]uint64, 0, p)
		for j := uint64(0); j < p; j++ {
			addr, err := r.Varint()
			if err != nil {
				return m, err
			}
			e.Parents = append(e.Parents, addr)
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

// PauseResumeResponse is the shared shape of the server->client PAUSE and
// RESUME acknowledgements.
type PauseResumeResponse struct {
	RequestID uint64
	ErrorCode uint8 // 0 = ok
}

func (m PauseResumeResponse) Encode(w *Writer) {
	w.PutUint64(m.RequestID)
	w.PutUint8(m.ErrorCode)
}

func DecodePauseResumeResponse(r *Reader) (PauseResumeResponse, error) {
	var m PauseResumeResponse
	var err error
	if m.RequestID, err = r.Uint64(); err != nil {
		return m, err
	}
	if m.ErrorCode, err = r.Uint8(); err != nil {
		return m, err
	}
	return m, nil
}

// ReferencesRequest is the client->server REFERENCES payload.
type ReferencesRequest struct {
	RequestID uint64
	Addrs     []uint64
}

func (m ReferencesRequest) Encode(w *Writer) {
	w.PutUint64(m.RequestID)
	w.PutUint64(uint64(len(m.Addrs)))
	for _, a := range m.Addrs {
		w.PutUint64(a)
	}
}

func DecodeReferencesRequest(r *Reader) (ReferencesRequest, error) {
	var m ReferencesRequest
	var err error
	if m.RequestID, err = r.Uint64(); err != nil {
		return m, err
	}
	n, err := r.Uint64()
	if err != nil {
		return m, err
	}
	m.Addrs = make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		a, err := r.Uint64()
		if err != nil {
			return m, err
		}
		m.Addrs = append(m.Addrs, a)
	}
	return m, nil
}

// PauseResumeRequest is the shared shape of the client->server PAUSE and
// RESUME requests.
type PauseResumeRequest struct {
	RequestID uint64
}

func (m PauseResumeRequest) Encode(w *Writer) {
	w.PutUint64(m.RequestID)
}

func DecodePauseResumeRequest(r *Reader) (PauseResumeRequest, error) {
	id, err := r.Uint64()
	return PauseResumeRequest{RequestID: id}, err
}
