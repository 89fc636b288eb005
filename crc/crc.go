package crc

const CRC16_POLY_8408 uint16 = 0x8408

const CRC16_INIT uint16 = 0xffff

func CRC16_p8408_next(crc uint16, data byte) uint16 {
	var i byte = 0
	for ; i < 8; i++ {
		if (crc&1)^uint16(data&1) != 0 {
			crc >>= 1
			crc ^= CRC16_POLY_8408
		} else {
			crc >>= 1
		}
		data >>= 1
	}
	return crc
}

func CRC16_p8408_n(crc uint16, bs []byte) uint16 {
	for _, b := range bs {
		crc = CRC16_p8408_next(crc, b)
	}
	return crc
}

func CRC16_p8408(bs []byte) uint16 {
	return CRC16_p8408_n(CRC16_INIT, bs)
}
