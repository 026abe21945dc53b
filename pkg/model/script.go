package model

// ScriptVersion distinguishes the Plutus language version a script was
// compiled against.
type ScriptVersion uint8

const (
	PlutusV1 ScriptVersion = iota + 1
	PlutusV2
	PlutusV3
)

// Script is a raw Plutus script along with its language version.
type Script struct {
	Version ScriptVersion
	Bytes   []byte
}

// NativeScriptKind discriminates the variants of a Cardano native (not
// Plutus) script.
type NativeScriptKind uint8

const (
	NativeScriptPubkey NativeScriptKind = iota
	NativeScriptAll
	NativeScriptAny
	NativeScriptNOfK
	NativeScriptInvalidBefore
	NativeScriptInvalidHereafter
)

// NativeScript is a recursive native-script predicate tree. Exactly one of
// the fields relevant to Kind is populated:
//   - NativeScriptPubkey: KeyHash
//   - NativeScriptAll / NativeScriptAny: Scripts
//   - NativeScriptNOfK: N and Scripts
//   - NativeScriptInvalidBefore / NativeScriptInvalidHereafter: Slot
type NativeScript struct {
	Kind    NativeScriptKind
	KeyHash AddressKeyHash
	Scripts []NativeScript
	N       uint32
	Slot    uint64
}
