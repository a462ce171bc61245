package domain

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"scorched/domain"
	"scorched/timeline"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	HeaderSize        = 25
	PayloadHeaderSize = 2
	JoinPayloadSize   = 16
	FireShotSize      = 29
	Vec3Size          = 12
)

// Header はメッセージヘッダー (25バイト)
//
//	version    u8       (1)
//	sessionID  [16]byte (16)
//	seq        u16      (2)
//	length     u16      (2)  - ペイロード長
//	timestamp  u32      (4)
type Header struct {
	Version   uint8
	SessionID [16]byte
	Seq       uint16
	Length    uint16
	Timestamp uint32
}

// DataType はメッセージの種別
type DataType uint8

const (
	DataTypeControl  DataType = 1
	DataTypeFire     DataType = 2
	DataTypeTimeline DataType = 3
)

// ControlSubType はcontrolメッセージのサブタイプ
type ControlSubType uint8

const (
	ControlSubTypeJoin   ControlSubType = 1
	ControlSubTypeLeave  ControlSubType = 2
	ControlSubTypeKick   ControlSubType = 3
	ControlSubTypePing   ControlSubType = 4
	ControlSubTypePong   ControlSubType = 5
	ControlSubTypeError  ControlSubType = 6
	ControlSubTypeAssign ControlSubType = 7
)

// PayloadHeader はペイロードヘッダー (2バイト)
//
//	datatype  u8 (1)
//	subtype   u8 (1)
type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

var (
	ErrInvalidHeaderSize      = errors.New("invalid header size")
	ErrInvalidPayloadSize     = errors.New("invalid payload size")
	ErrInvalidJoinPayloadSize = errors.New("invalid join payload size")
	ErrInvalidFirePayloadSize = errors.New("invalid fire payload size")
	ErrPayloadTooLarge        = errors.New("payload exceeds length field")
	ErrHeaderLengthMismatch   = errors.New("header length does not match payload")
)

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}

	var sessionID [16]byte
	copy(sessionID[:], data[1:17])

	return &Header{
		Version:   data[0],
		SessionID: sessionID,
		Seq:       byteOrder.Uint16(data[17:19]),
		Length:    byteOrder.Uint16(data[19:21]),
		Timestamp: byteOrder.Uint32(data[21:25]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	data[0] = h.Version
	copy(data[1:17], h.SessionID[:])
	byteOrder.PutUint16(data[17:19], h.Seq)
	byteOrder.PutUint16(data[19:21], h.Length)
	byteOrder.PutUint32(data[21:25], h.Timestamp)
	return data
}

// ParsePayloadHeader はバイト列からPayloadHeaderをパースする
func ParsePayloadHeader(data []byte) (*PayloadHeader, error) {
	if len(data) < PayloadHeaderSize {
		return nil, ErrInvalidPayloadSize
	}

	return &PayloadHeader{
		DataType: DataType(data[0]),
		SubType:  data[1],
	}, nil
}

// Encode はPayloadHeaderをバイト列にエンコードする
func (p *PayloadHeader) Encode() []byte {
	data := make([]byte, PayloadHeaderSize)
	data[0] = byte(p.DataType)
	data[1] = p.SubType
	return data
}

// JoinPayload はマッチ参加メッセージのペイロード (16バイト)
//
//	matchID  [16]byte  - UTF-8、末尾ゼロ詰め
type JoinPayload struct {
	MatchID MatchID
}

// ParseJoinPayload はバイト列からJoinPayloadをパースする
func ParseJoinPayload(data []byte) (*JoinPayload, error) {
	if len(data) < JoinPayloadSize {
		return nil, ErrInvalidJoinPayloadSize
	}
	end := JoinPayloadSize
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return &JoinPayload{
		MatchID: MatchID(data[:end]),
	}, nil
}

// Encode はJoinPayloadをバイト列にエンコードする
func (j *JoinPayload) Encode() []byte {
	data := make([]byte, JoinPayloadSize)
	copy(data, j.MatchID)
	return data
}

// FireShot は1発分の発射要求 (29バイト)
//
//	weapon    u8          (1)
//	origin    3 * float32 (12)
//	direction 3 * float32 (12)
//	power     float32     (4)
type FireShot struct {
	Weapon    timeline.WeaponCode
	Origin    domain.Vec3
	Direction domain.Vec3
	Power     float64
}

// FirePayload は一斉射撃の発射要求ペイロード
//
//	count  u8 (1)
//	shots  count * FireShot
type FirePayload struct {
	Shots []FireShot
}

// ParseFirePayload はバイト列からFirePayloadをパースする
func ParseFirePayload(data []byte) (*FirePayload, error) {
	if len(data) < 1 {
		return nil, ErrInvalidFirePayloadSize
	}
	count := int(data[0])
	if len(data) < 1+count*FireShotSize {
		return nil, ErrInvalidFirePayloadSize
	}

	shots := make([]FireShot, 0, count)
	offset := 1
	for i := 0; i < count; i++ {
		p := data[offset : offset+FireShotSize]
		shots = append(shots, FireShot{
			Weapon:    timeline.WeaponCode(p[0]),
			Origin:    parseVec3(p[1:13]),
			Direction: parseVec3(p[13:25]),
			Power:     float64(math.Float32frombits(byteOrder.Uint32(p[25:29]))),
		})
		offset += FireShotSize
	}
	return &FirePayload{Shots: shots}, nil
}

// Encode はFirePayloadをバイト列にエンコードする
func (f *FirePayload) Encode() []byte {
	data := make([]byte, 1+len(f.Shots)*FireShotSize)
	data[0] = byte(len(f.Shots))
	offset := 1
	for _, shot := range f.Shots {
		p := data[offset : offset+FireShotSize]
		p[0] = byte(shot.Weapon)
		putVec3(p[1:13], shot.Origin)
		putVec3(p[13:25], shot.Direction)
		byteOrder.PutUint32(p[25:29], math.Float32bits(float32(shot.Power)))
		offset += FireShotSize
	}
	return data
}

// EncodeMessage はヘッダー・ペイロードヘッダー・ペイロードを1メッセージに組み立てる
func EncodeMessage(sessionID SessionID, dataType DataType, subType uint8, payload []byte) ([]byte, error) {
	if PayloadHeaderSize+len(payload) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	header := Header{
		Version:   1,
		SessionID: sessionID.Bytes(),
		Seq:       0,
		Length:    uint16(PayloadHeaderSize + len(payload)),
		Timestamp: uint32(time.Now().UnixMilli() & 0xFFFFFFFF),
	}
	payloadHeader := PayloadHeader{
		DataType: dataType,
		SubType:  subType,
	}

	data := make([]byte, 0, HeaderSize+PayloadHeaderSize+len(payload))
	data = append(data, header.Encode()...)
	data = append(data, payloadHeader.Encode()...)
	data = append(data, payload...)
	return data, nil
}

// EncodeAssignMessage はセッションID通知メッセージをエンコードする
// クライアントに自分のセッションIDを通知するために使用
func EncodeAssignMessage(sessionID SessionID) []byte {
	data, _ := EncodeMessage(sessionID, DataTypeControl, uint8(ControlSubTypeAssign), nil)
	return data
}

// EncodeLeaveMessage はマッチ離脱メッセージをエンコードする
// 異常切断時にclose()からマッチ離脱を通知するために使用
func EncodeLeaveMessage(sessionID SessionID) []byte {
	data, _ := EncodeMessage(sessionID, DataTypeControl, uint8(ControlSubTypeLeave), nil)
	return data
}

// EncodePingMessage はPingメッセージをエンコードする
func EncodePingMessage(sessionID SessionID) []byte {
	data, _ := EncodeMessage(sessionID, DataTypeControl, uint8(ControlSubTypePing), nil)
	return data
}

// EncodeTimelineMessage はシミュレーション済みタイムラインを配信メッセージにエンコードする
func EncodeTimelineMessage(sessionID SessionID, events []timeline.Event) ([]byte, error) {
	payload, err := timeline.EncodeEvents(events)
	if err != nil {
		return nil, err
	}
	return EncodeMessage(sessionID, DataTypeTimeline, 0, payload)
}

func putVec3(buf []byte, v domain.Vec3) {
	byteOrder.PutUint32(buf[0:4], math.Float32bits(float32(v.X)))
	byteOrder.PutUint32(buf[4:8], math.Float32bits(float32(v.Y)))
	byteOrder.PutUint32(buf[8:12], math.Float32bits(float32(v.Z)))
}

func parseVec3(buf []byte) domain.Vec3 {
	return domain.Vec3{
		X: float64(math.Float32frombits(byteOrder.Uint32(buf[0:4]))),
		Y: float64(math.Float32frombits(byteOrder.Uint32(buf[4:8]))),
		Z: float64(math.Float32frombits(byteOrder.Uint32(buf[8:12]))),
	}
}
