// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build windows

package platform

import (
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// wmiResult is a single WMI object's properties, keyed by property name.
type wmiResult map[string]any

// wmiQuery runs a WQL query against the given namespace and returns one
// wmiResult per object. COM is initialized and torn down per call, which
// is fine at the cadence the VM Detector and Adapter use it (one-shot,
// every few seconds at the fastest).
func wmiQuery(namespace, query string) ([]wmiResult, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 0x00000001 {
			return nil, fmt.Errorf("platform: COM init: %w", err)
		}
	}
	defer ole.CoUninitialize()

	locatorUnknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, fmt.Errorf("platform: create WMI locator: %w", err)
	}
	defer locatorUnknown.Release()

	locator, err := locatorUnknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("platform: locator dispatch: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", ".", namespace)
	if err != nil {
		return nil, fmt.Errorf("platform: connect %s: %w", namespace, err)
	}
	service := serviceRaw.ToIDispatch()
	defer service.Release()

	resultRaw, err := oleutil.CallMethod(service, "ExecQuery", query)
	if err != nil {
		return nil, fmt.Errorf("platform: query %q: %w", query, err)
	}
	result := resultRaw.ToIDispatch()
	defer result.Release()

	countRaw, err := oleutil.GetProperty(result, "Count")
	if err != nil {
		return nil, fmt.Errorf("platform: result count: %w", err)
	}
	count := int(countRaw.Val)

	results := make([]wmiResult, 0, count)
	for i := 0; i < count; i++ {
		itemRaw, err := oleutil.CallMethod(result, "ItemIndex", i)
		if err != nil {
			continue
		}
		item := itemRaw.ToIDispatch()

		propsRaw, err := oleutil.GetProperty(item, "Properties_")
		if err != nil {
			item.Release()
			continue
		}
		props := propsRaw.ToIDispatch()

		propCountRaw, err := oleutil.GetProperty(props, "Count")
		if err != nil {
			props.Release()
			item.Release()
			continue
		}

		row := make(wmiResult)
		for j := 0; j < int(propCountRaw.Val); j++ {
			propRaw, err := oleutil.CallMethod(props, "ItemIndex", j)
			if err != nil {
				continue
			}
			prop := propRaw.ToIDispatch()

			nameRaw, err := oleutil.GetProperty(prop, "Name")
			if err != nil {
				prop.Release()
				continue
			}
			valRaw, err := oleutil.GetProperty(prop, "Value")
			if err != nil {
				prop.Release()
				continue
			}

			switch valRaw.VT {
			case ole.VT_NULL, ole.VT_EMPTY:
				row[nameRaw.ToString()] = nil
			case ole.VT_BOOL:
				row[nameRaw.ToString()] = valRaw.Val != 0
			case ole.VT_BSTR:
				row[nameRaw.ToString()] = valRaw.ToString()
			default:
				row[nameRaw.ToString()] = valRaw.Value()
			}
			prop.Release()
		}

		results = append(results, row)
		props.Release()
		item.Release()
	}

	return results, nil
}

func wmiString(row wmiResult, key string) string {
	if v, ok := row[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func wmiBool(row wmiResult, key string) bool {
	if v, ok := row[key]; ok && v != nil {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// registryKeyExistsWMI checks for a registry key's presence via the
// StdRegProv WMI class, avoiding a direct registry handle from a
// service context that may not hold the needed privilege.
func registryKeyExistsWMI(hive uint32, path string) (bool, error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 0x00000001 {
			return false, fmt.Errorf("platform: COM init: %w", err)
		}
	}
	defer ole.CoUninitialize()

	locatorUnknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return false, fmt.Errorf("platform: create WMI locator: %w", err)
	}
	defer locatorUnknown.Release()

	locator, err := locatorUnknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return false, fmt.Errorf("platform: locator dispatch: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", ".", `root\default`)
	if err != nil {
		return false, fmt.Errorf("platform: connect root\\default: %w", err)
	}
	service := serviceRaw.ToIDispatch()
	defer service.Release()

	regRaw, err := oleutil.CallMethod(service, "Get", "StdRegProv")
	if err != nil {
		return false, fmt.Errorf("platform: get StdRegProv: %w", err)
	}
	reg := regRaw.ToIDispatch()
	defer reg.Release()

	_, err = oleutil.CallMethod(reg, "EnumKey", hive, path)
	if err != nil {
		return false, nil
	}
	return true, nil
}

const hkeyLocalMachine uint32 = 0x80000002
