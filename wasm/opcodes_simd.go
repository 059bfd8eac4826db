package wasm

// SIMD opcodes (0xFD prefix). Codes from 0x100 belong to relaxed SIMD.
const (
	SimdV128Load                  uint32 = 0x00
	SimdV128Load8x8S              uint32 = 0x01
	SimdV128Load8x8U              uint32 = 0x02
	SimdV128Load16x4S             uint32 = 0x03
	SimdV128Load16x4U             uint32 = 0x04
	SimdV128Load32x2S             uint32 = 0x05
	SimdV128Load32x2U             uint32 = 0x06
	SimdV128Load8Splat            uint32 = 0x07
	SimdV128Load16Splat           uint32 = 0x08
	SimdV128Load32Splat           uint32 = 0x09
	SimdV128Load64Splat           uint32 = 0x0A
	SimdV128Store                 uint32 = 0x0B
	SimdV128Const                 uint32 = 0x0C
	SimdI8x16Shuffle              uint32 = 0x0D
	SimdI8x16Swizzle              uint32 = 0x0E
	SimdI8x16Splat                uint32 = 0x0F
	SimdI16x8Splat                uint32 = 0x10
	SimdI32x4Splat                uint32 = 0x11
	SimdI64x2Splat                uint32 = 0x12
	SimdF32x4Splat                uint32 = 0x13
	SimdF64x2Splat                uint32 = 0x14
	SimdI8x16ExtractLaneS         uint32 = 0x15
	SimdI8x16ExtractLaneU         uint32 = 0x16
	SimdI8x16ReplaceLane          uint32 = 0x17
	SimdI16x8ExtractLaneS         uint32 = 0x18
	SimdI16x8ExtractLaneU         uint32 = 0x19
	SimdI16x8ReplaceLane          uint32 = 0x1A
	SimdI32x4ExtractLane          uint32 = 0x1B
	SimdI32x4ReplaceLane          uint32 = 0x1C
	SimdI64x2ExtractLane          uint32 = 0x1D
	SimdI64x2ReplaceLane          uint32 = 0x1E
	SimdF32x4ExtractLane          uint32 = 0x1F
	SimdF32x4ReplaceLane          uint32 = 0x20
	SimdF64x2ExtractLane          uint32 = 0x21
	SimdF64x2ReplaceLane          uint32 = 0x22
	SimdI8x16Eq                   uint32 = 0x23
	SimdI8x16Ne                   uint32 = 0x24
	SimdI8x16LtS                  uint32 = 0x25
	SimdI8x16LtU                  uint32 = 0x26
	SimdI8x16GtS                  uint32 = 0x27
	SimdI8x16GtU                  uint32 = 0x28
	SimdI8x16LeS                  uint32 = 0x29
	SimdI8x16LeU                  uint32 = 0x2A
	SimdI8x16GeS                  uint32 = 0x2B
	SimdI8x16GeU                  uint32 = 0x2C
	SimdI16x8Eq                   uint32 = 0x2D
	SimdI16x8Ne                   uint32 = 0x2E
	SimdI16x8LtS                  uint32 = 0x2F
	SimdI16x8LtU                  uint32 = 0x30
	SimdI16x8GtS                  uint32 = 0x31
	SimdI16x8GtU                  uint32 = 0x32
	SimdI16x8LeS                  uint32 = 0x33
	SimdI16x8LeU                  uint32 = 0x34
	SimdI16x8GeS                  uint32 = 0x35
	SimdI16x8GeU                  uint32 = 0x36
	SimdI32x4Eq                   uint32 = 0x37
	SimdI32x4Ne                   uint32 = 0x38
	SimdI32x4LtS                  uint32 = 0x39
	SimdI32x4LtU                  uint32 = 0x3A
	SimdI32x4GtS                  uint32 = 0x3B
	SimdI32x4GtU                  uint32 = 0x3C
	SimdI32x4LeS                  uint32 = 0x3D
	SimdI32x4LeU                  uint32 = 0x3E
	SimdI32x4GeS                  uint32 = 0x3F
	SimdI32x4GeU                  uint32 = 0x40
	SimdF32x4Eq                   uint32 = 0x41
	SimdF32x4Ne                   uint32 = 0x42
	SimdF32x4Lt                   uint32 = 0x43
	SimdF32x4Gt                   uint32 = 0x44
	SimdF32x4Le                   uint32 = 0x45
	SimdF32x4Ge                   uint32 = 0x46
	SimdF64x2Eq                   uint32 = 0x47
	SimdF64x2Ne                   uint32 = 0x48
	SimdF64x2Lt                   uint32 = 0x49
	SimdF64x2Gt                   uint32 = 0x4A
	SimdF64x2Le                   uint32 = 0x4B
	SimdF64x2Ge                   uint32 = 0x4C
	SimdV128Not                   uint32 = 0x4D
	SimdV128And                   uint32 = 0x4E
	SimdV128AndNot                uint32 = 0x4F
	SimdV128Or                    uint32 = 0x50
	SimdV128Xor                   uint32 = 0x51
	SimdV128Bitselect             uint32 = 0x52
	SimdV128AnyTrue               uint32 = 0x53
	SimdV128Load8Lane             uint32 = 0x54
	SimdV128Load16Lane            uint32 = 0x55
	SimdV128Load32Lane            uint32 = 0x56
	SimdV128Load64Lane            uint32 = 0x57
	SimdV128Store8Lane            uint32 = 0x58
	SimdV128Store16Lane           uint32 = 0x59
	SimdV128Store32Lane           uint32 = 0x5A
	SimdV128Store64Lane           uint32 = 0x5B
	SimdV128Load32Zero            uint32 = 0x5C
	SimdV128Load64Zero            uint32 = 0x5D
	SimdF32x4DemoteF64x2Zero      uint32 = 0x5E
	SimdF64x2PromoteLowF32x4      uint32 = 0x5F
	SimdI8x16Abs                  uint32 = 0x60
	SimdI8x16Neg                  uint32 = 0x61
	SimdI8x16Popcnt               uint32 = 0x62
	SimdI8x16AllTrue              uint32 = 0x63
	SimdI8x16Bitmask              uint32 = 0x64
	SimdI8x16NarrowI16x8S         uint32 = 0x65
	SimdI8x16NarrowI16x8U         uint32 = 0x66
	SimdF32x4Ceil                 uint32 = 0x67
	SimdF32x4Floor                uint32 = 0x68
	SimdF32x4Trunc                uint32 = 0x69
	SimdF32x4Nearest              uint32 = 0x6A
	SimdI8x16Shl                  uint32 = 0x6B
	SimdI8x16ShrS                 uint32 = 0x6C
	SimdI8x16ShrU                 uint32 = 0x6D
	SimdI8x16Add                  uint32 = 0x6E
	SimdI8x16AddSatS              uint32 = 0x6F
	SimdI8x16AddSatU              uint32 = 0x70
	SimdI8x16Sub                  uint32 = 0x71
	SimdI8x16SubSatS              uint32 = 0x72
	SimdI8x16SubSatU              uint32 = 0x73
	SimdF64x2Ceil                 uint32 = 0x74
	SimdF64x2Floor                uint32 = 0x75
	SimdI8x16MinS                 uint32 = 0x76
	SimdI8x16MinU                 uint32 = 0x77
	SimdI8x16MaxS                 uint32 = 0x78
	SimdI8x16MaxU                 uint32 = 0x79
	SimdF64x2Trunc                uint32 = 0x7A
	SimdI8x16AvgrU                uint32 = 0x7B
	SimdI16x8ExtAddPairwiseI8x16S uint32 = 0x7C
	SimdI16x8ExtAddPairwiseI8x16U uint32 = 0x7D
	SimdI32x4ExtAddPairwiseI16x8S uint32 = 0x7E
	SimdI32x4ExtAddPairwiseI16x8U uint32 = 0x7F
	SimdI16x8Abs                  uint32 = 0x80
	SimdI16x8Neg                  uint32 = 0x81
	SimdI16x8Q15MulrSatS          uint32 = 0x82
	SimdI16x8AllTrue              uint32 = 0x83
	SimdI16x8Bitmask              uint32 = 0x84
	SimdI16x8NarrowI32x4S         uint32 = 0x85
	SimdI16x8NarrowI32x4U         uint32 = 0x86
	SimdI16x8ExtendLowI8x16S      uint32 = 0x87
	SimdI16x8ExtendHighI8x16S     uint32 = 0x88
	SimdI16x8ExtendLowI8x16U      uint32 = 0x89
	SimdI16x8ExtendHighI8x16U     uint32 = 0x8A
	SimdI16x8Shl                  uint32 = 0x8B
	SimdI16x8ShrS                 uint32 = 0x8C
	SimdI16x8ShrU                 uint32 = 0x8D
	SimdI16x8Add                  uint32 = 0x8E
	SimdI16x8AddSatS              uint32 = 0x8F
	SimdI16x8AddSatU              uint32 = 0x90
	SimdI16x8Sub                  uint32 = 0x91
	SimdI16x8SubSatS              uint32 = 0x92
	SimdI16x8SubSatU              uint32 = 0x93
	SimdF64x2Nearest              uint32 = 0x94
	SimdI16x8Mul                  uint32 = 0x95
	SimdI16x8MinS                 uint32 = 0x96
	SimdI16x8MinU                 uint32 = 0x97
	SimdI16x8MaxS                 uint32 = 0x98
	SimdI16x8MaxU                 uint32 = 0x99
	SimdI16x8AvgrU                uint32 = 0x9B
	SimdI16x8ExtMulLowI8x16S      uint32 = 0x9C
	SimdI16x8ExtMulHighI8x16S     uint32 = 0x9D
	SimdI16x8ExtMulLowI8x16U      uint32 = 0x9E
	SimdI16x8ExtMulHighI8x16U     uint32 = 0x9F
	SimdI32x4Abs                  uint32 = 0xA0
	SimdI32x4Neg                  uint32 = 0xA1
	SimdI32x4AllTrue              uint32 = 0xA3
	SimdI32x4Bitmask              uint32 = 0xA4
	SimdI32x4ExtendLowI16x8S      uint32 = 0xA7
	SimdI32x4ExtendHighI16x8S     uint32 = 0xA8
	SimdI32x4ExtendLowI16x8U      uint32 = 0xA9
	SimdI32x4ExtendHighI16x8U     uint32 = 0xAA
	SimdI32x4Shl                  uint32 = 0xAB
	SimdI32x4ShrS                 uint32 = 0xAC
	SimdI32x4ShrU                 uint32 = 0xAD
	SimdI32x4Add                  uint32 = 0xAE
	SimdI32x4Sub                  uint32 = 0xB1
	SimdI32x4Mul                  uint32 = 0xB5
	SimdI32x4MinS                 uint32 = 0xB6
	SimdI32x4MinU                 uint32 = 0xB7
	SimdI32x4MaxS                 uint32 = 0xB8
	SimdI32x4MaxU                 uint32 = 0xB9
	SimdI32x4DotI16x8S            uint32 = 0xBA
	SimdI32x4ExtMulLowI16x8S      uint32 = 0xBC
	SimdI32x4ExtMulHighI16x8S     uint32 = 0xBD
	SimdI32x4ExtMulLowI16x8U      uint32 = 0xBE
	SimdI32x4ExtMulHighI16x8U     uint32 = 0xBF
	SimdI64x2Abs                  uint32 = 0xC0
	SimdI64x2Neg                  uint32 = 0xC1
	SimdI64x2AllTrue              uint32 = 0xC3
	SimdI64x2Bitmask              uint32 = 0xC4
	SimdI64x2ExtendLowI32x4S      uint32 = 0xC7
	SimdI64x2ExtendHighI32x4S     uint32 = 0xC8
	SimdI64x2ExtendLowI32x4U      uint32 = 0xC9
	SimdI64x2ExtendHighI32x4U     uint32 = 0xCA
	SimdI64x2Shl                  uint32 = 0xCB
	SimdI64x2ShrS                 uint32 = 0xCC
	SimdI64x2ShrU                 uint32 = 0xCD
	SimdI64x2Add                  uint32 = 0xCE
	SimdI64x2Sub                  uint32 = 0xD1
	SimdI64x2Mul                  uint32 = 0xD5
	SimdI64x2Eq                   uint32 = 0xD6
	SimdI64x2Ne                   uint32 = 0xD7
	SimdI64x2LtS                  uint32 = 0xD8
	SimdI64x2GtS                  uint32 = 0xD9
	SimdI64x2LeS                  uint32 = 0xDA
	SimdI64x2GeS                  uint32 = 0xDB
	SimdI64x2ExtMulLowI32x4S      uint32 = 0xDC
	SimdI64x2ExtMulHighI32x4S     uint32 = 0xDD
	SimdI64x2ExtMulLowI32x4U      uint32 = 0xDE
	SimdI64x2ExtMulHighI32x4U     uint32 = 0xDF
	SimdF32x4Abs                  uint32 = 0xE0
	SimdF32x4Neg                  uint32 = 0xE1
	SimdF32x4Sqrt                 uint32 = 0xE3
	SimdF32x4Add                  uint32 = 0xE4
	SimdF32x4Sub                  uint32 = 0xE5
	SimdF32x4Mul                  uint32 = 0xE6
	SimdF32x4Div                  uint32 = 0xE7
	SimdF32x4Min                  uint32 = 0xE8
	SimdF32x4Max                  uint32 = 0xE9
	SimdF32x4Pmin                 uint32 = 0xEA
	SimdF32x4Pmax                 uint32 = 0xEB
	SimdF64x2Abs                  uint32 = 0xEC
	SimdF64x2Neg                  uint32 = 0xED
	SimdF64x2Sqrt                 uint32 = 0xEF
	SimdF64x2Add                  uint32 = 0xF0
	SimdF64x2Sub                  uint32 = 0xF1
	SimdF64x2Mul                  uint32 = 0xF2
	SimdF64x2Div                  uint32 = 0xF3
	SimdF64x2Min                  uint32 = 0xF4
	SimdF64x2Max                  uint32 = 0xF5
	SimdF64x2Pmin                 uint32 = 0xF6
	SimdF64x2Pmax                 uint32 = 0xF7
	SimdI32x4TruncSatF32x4S       uint32 = 0xF8
	SimdI32x4TruncSatF32x4U       uint32 = 0xF9
	SimdF32x4ConvertI32x4S        uint32 = 0xFA
	SimdF32x4ConvertI32x4U        uint32 = 0xFB
	SimdI32x4TruncSatF64x2SZero   uint32 = 0xFC
	SimdI32x4TruncSatF64x2UZero   uint32 = 0xFD
	SimdF64x2ConvertLowI32x4S     uint32 = 0xFE
	SimdF64x2ConvertLowI32x4U     uint32 = 0xFF

	// Relaxed SIMD
	SimdI8x16RelaxedSwizzle           uint32 = 0x100
	SimdI32x4RelaxedTruncF32x4S       uint32 = 0x101
	SimdI32x4RelaxedTruncF32x4U       uint32 = 0x102
	SimdI32x4RelaxedTruncF64x2SZero   uint32 = 0x103
	SimdI32x4RelaxedTruncF64x2UZero   uint32 = 0x104
	SimdF32x4RelaxedMadd              uint32 = 0x105
	SimdF32x4RelaxedNmadd             uint32 = 0x106
	SimdF64x2RelaxedMadd              uint32 = 0x107
	SimdF64x2RelaxedNmadd             uint32 = 0x108
	SimdI8x16RelaxedLaneselect        uint32 = 0x109
	SimdI16x8RelaxedLaneselect        uint32 = 0x10A
	SimdI32x4RelaxedLaneselect        uint32 = 0x10B
	SimdI64x2RelaxedLaneselect        uint32 = 0x10C
	SimdF32x4RelaxedMin               uint32 = 0x10D
	SimdF32x4RelaxedMax               uint32 = 0x10E
	SimdF64x2RelaxedMin               uint32 = 0x10F
	SimdF64x2RelaxedMax               uint32 = 0x110
	SimdI16x8RelaxedQ15MulrS          uint32 = 0x111
	SimdI16x8RelaxedDotI8x16I7x16S    uint32 = 0x112
	SimdI32x4RelaxedDotI8x16I7x16AddS uint32 = 0x113
)
