package processor

import "github.com/twofivefivedev/nz-transit-app/pkg/transit/models"

// MapCause translates a GTFS-realtime Alert.Cause code. Codes outside the table map to CauseUnmapped.
func MapCause(code int32) models.AlertCause {
	switch code {
	case 1:
		return models.CauseUnknownCause
	case 2:
		return models.CauseOtherCause
	case 3:
		return models.CauseTechnicalProblem
	case 4:
		return models.CauseStrike
	case 5:
		return models.CauseDemonstration
	case 6:
		return models.CauseAccident
	case 7:
		return models.CauseHoliday
	case 8:
		return models.CauseWeather
	case 9:
		return models.CauseMaintenance
	case 10:
		return models.CauseConstruction
	case 11:
		return models.CausePoliceActivity
	case 12:
		return models.CauseMedicalEmergency
	default:
		return models.CauseUnmapped
	}
}

// MapEffect translates a GTFS-realtime Alert.Effect code. Codes outside the table map to EffectUnmapped.
func MapEffect(code int32) models.AlertEffect {
	switch code {
	case 1:
		return models.EffectNoService
	case 2:
		return models.EffectReducedService
	case 3:
		return models.EffectSignificantDelays
	case 4:
		return models.EffectDetour
	case 5:
		return models.EffectAdditionalService
	case 6:
		return models.EffectModifiedService
	case 7:
		return models.EffectOtherEffect
	case 8:
		return models.EffectUnknownEffect
	case 9:
		return models.EffectStopMoved
	default:
		return models.EffectUnmapped
	}
}

func MapVehicleStatus(code int32) models.VehicleStatus {
	switch code {
	case 0:
		return models.VehicleIncomingAt
	case 1:
		return models.VehicleStoppedAt
	case 2:
		return models.VehicleInTransitTo
	default:
		return models.VehicleUnknown
	}
}
